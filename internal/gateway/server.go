package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/captionbot/internal/channel"
	"github.com/soyeahso/captionbot/internal/config"
	"github.com/soyeahso/captionbot/internal/dispatch"
	"github.com/soyeahso/captionbot/internal/hooks"
	"github.com/soyeahso/captionbot/internal/logging"
	"github.com/soyeahso/captionbot/internal/version"
)

var ErrClientClosed = errors.New("client connection closed")

const (
	maxFrameBytes   = 1 << 20
	handshakeWait   = 10 * time.Second
	shutdownTimeout = 10 * time.Second

	// EventHook is the frame event name used to forward hook payloads to
	// control clients.
	EventHook = "hooks.event"
)

// Route is an extra HTTP handler mounted next to the control endpoints,
// typically a channel webhook.
type Route struct {
	Pattern string
	Handler http.Handler
}

// Server is the captionbot HTTP + WebSocket gateway. It serves channel
// webhooks and the authenticated control plane.
type Server struct {
	cfg      config.Config
	auth     ResolvedAuth
	log      *logging.Logger
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	routes   []Route
	eventSeq atomic.Int64

	mu        sync.RWMutex
	configRaw map[string]any

	channels   *channel.Registry
	hooks      *hooks.Manager
	dispatcher *dispatch.Dispatcher

	startedAt   time.Time
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithConfigRaw sets the raw config map served by config.get and config.set.
func WithConfigRaw(raw map[string]any) ServerOption {
	return func(s *Server) {
		if raw != nil {
			s.configRaw = raw
		}
	}
}

// WithChannels sets the channel registry for channels.status and for
// credential lookup in caption.describe.
func WithChannels(ch *channel.Registry) ServerOption {
	return func(s *Server) { s.channels = ch }
}

// WithHooks sets the hook manager. Hook events are forwarded to connected
// control clients.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// WithDispatcher enables the caption.describe RPC.
func WithDispatcher(d *dispatch.Dispatcher) ServerOption {
	return func(s *Server) { s.dispatcher = d }
}

// WithRoute mounts handler at pattern (http.ServeMux syntax).
func WithRoute(pattern string, handler http.Handler) ServerOption {
	return func(s *Server) {
		s.routes = append(s.routes, Route{Pattern: pattern, Handler: handler})
	}
}

// New creates a gateway server.
func New(cfg config.Config, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:         cfg,
		auth:        ResolveAuth(cfg.Gateway.Auth),
		log:         log.Sub("gateway"),
		clients:     NewClientRegistry(log.Sub("clients")),
		handlers:    make(map[string]RequestHandler),
		configRaw:   make(map[string]any),
		authLimiter: newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Gateway.ControlUI.AllowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRPCHandlers()
	if s.hooks != nil {
		s.hooks.OnAll("gateway-broadcast", s.forwardHook)
	}
	return s
}

// checkWebSocketOrigin accepts requests without an Origin header and those
// whose Origin is listed (or "*" is listed).
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isOriginAllowed(origin, allowed)
	}
}

// Handle registers an RPC method handler.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods returns the registered RPC method names, sorted.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "lan", "auto":
		host = "0.0.0.0"
	case "custom":
		host = cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
	}
	return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
}

// Handler returns the full HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.Gateway.ControlUI.AllowedOrigins)
}

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Gateway)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	if s.cfg.Gateway.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.Gateway.TLS.CertPath, s.cfg.Gateway.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("load TLS certificate: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
		s.log.Info().Msg("TLS enabled")
	} else if s.cfg.Gateway.Bind != "loopback" {
		s.log.Warn().Msg("TLS is not enabled, webhook traffic and control credentials travel in cleartext")
	}

	return s.Serve(ctx, ln)
}

// Serve runs the gateway on an existing listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Addr:         ln.Addr().String(),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.startedAt = time.Now()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Gateway.Bind).
		Str("auth", s.auth.Mode).
		Int("routes", len(s.routes)).
		Int("methods", len(s.handlers)).
		Msg("gateway listening")

	s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": ln.Addr().String()})

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway")
		s.hooks.Emit(context.WithoutCancel(ctx), hooks.EventGatewayStop, nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.clients.CloseAll()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the listen address, or "" before Serve.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

// Uptime reports how long the server has been serving.
func (s *Server) Uptime() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}

func (s *Server) forwardHook(_ context.Context, p hooks.Payload) error {
	if s.clients.Count() == 0 {
		return nil
	}
	s.clients.Broadcast(EventHook, p, s.eventSeq.Add(1))
	return nil
}

// handleWebSocket upgrades the request and runs the control connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("too many failed auth attempts")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		s.authLimiter.recordFailure(r.RemoteAddr)
		conn.Close()
		return
	}

	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	s.readLoop(client)
}

// handshake sends connect.challenge, expects a connect request with valid
// credentials and answers with HelloOK.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeWait))

	challenge, err := NewEvent("connect.challenge", map[string]any{
		"nonce": uuid.NewString(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("send challenge: %w", err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read connect: %w", err)
	}
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("parse connect frame: %w", err)
	}
	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		sendErrorAndClose(conn, frame.ID, "protocol_error", "expected connect request")
		return nil, fmt.Errorf("expected connect request, got type=%s method=%s", frame.Type, frame.Method)
	}

	var params ConnectParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		sendErrorAndClose(conn, frame.ID, "invalid_params", "invalid connect params")
		return nil, fmt.Errorf("parse connect params: %w", err)
	}

	result := Authorize(s.auth, params.Auth)
	if !result.OK {
		sendErrorAndClose(conn, frame.ID, "unauthorized", result.Reason)
		return nil, fmt.Errorf("auth failed: %s", result.Reason)
	}
	conn.SetReadDeadline(time.Time{})

	client := NewClient(conn, params.Client, result, s.log.Sub("ws"))
	hello := HelloOK{
		Protocol: ProtocolVersion,
		Server: ServerInfo{
			Version: version.Version,
			Commit:  version.Commit,
			ConnID:  client.ConnID,
		},
		Features: Features{
			Methods: s.Methods(),
			Events:  []string{"connect.challenge", EventHook},
		},
		Policy: ServerPolicy{MaxPayload: maxFrameBytes},
	}
	resp, err := NewResponse(frame.ID, hello)
	if err != nil {
		return nil, fmt.Errorf("create hello: %w", err)
	}
	if err := client.Send(resp); err != nil {
		return nil, fmt.Errorf("send hello: %w", err)
	}

	s.log.Info().
		Str("connId", client.ConnID).
		Str("clientId", params.Client.ID).
		Str("authMethod", result.Method).
		Msg("client authenticated")
	return client, nil
}

// readLoop processes request frames from an authenticated client.
func (s *Server) readLoop(client *Client) {
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ConnID).Msg("client closed connection")
			} else {
				s.log.Warn().Err(err).Str("connId", client.ConnID).Msg("read error")
			}
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		s.dispatch(client, frame)
	}
}

// dispatch routes a request frame to its handler.
func (s *Server) dispatch(client *Client, frame Frame) {
	handler, ok := s.handlers[frame.Method]
	if !ok {
		client.RespondError(frame.ID, ErrorShape{
			Code:    "method_not_found",
			Message: "unknown method: " + frame.Method,
		})
		return
	}
	handler(&RequestContext{Client: client, Frame: frame, Server: s})
}

func sendErrorAndClose(conn *websocket.Conn, reqID, code, message string) {
	conn.WriteJSON(NewErrorResponse(reqID, ErrorShape{Code: code, Message: message}))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, message))
}
