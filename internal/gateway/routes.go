package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/captionbot/internal/config"
	"github.com/soyeahso/captionbot/internal/dispatch"
	"github.com/soyeahso/captionbot/internal/domain"
	"github.com/soyeahso/captionbot/internal/resolver"
	"github.com/soyeahso/captionbot/internal/version"
)

// configRPCPrefixes are the config paths readable and writable over RPC.
// Secrets (auth, API keys, app passwords, broker URLs) are never listed.
var configRPCPrefixes = []string{
	"gateway.port",
	"gateway.bind",
	"gateway.customBindHost",
	"gateway.controlUi",
	"caption.provider",
	"caption.endpoint",
	"caption.model",
	"caption.language",
	"caption.timeoutSeconds",
	"channels.irc.channels",
	"events.enabled",
	"events.exchange",
	"logging",
}

func isAllowedConfigPath(key string) bool {
	for _, prefix := range configRPCPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

// registerHTTPRoutes mounts the control endpoints and the extra routes.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	for _, r := range s.routes {
		mux.Handle(r.Pattern, r.Handler)
	}
	mux.HandleFunc("/", handleNotFound)
}

func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("config.get", s.rpcConfigGet)
	s.Handle("config.set", s.rpcConfigSet)
	s.Handle("channels.status", s.rpcChannelsStatus)
	s.Handle("caption.resolve", s.rpcCaptionResolve)
	s.Handle("caption.describe", s.rpcCaptionDescribe)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	resp := HealthResponse{
		Status:   "ok",
		Version:  version.Version,
		Clients:  s.clients.Count(),
		UptimeMs: s.Uptime().Milliseconds(),
	}
	if s.channels != nil {
		resp.Channels = s.channels.Count()
	}
	rc.Respond(resp)
}

type configKeyParams struct {
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
}

// configPath validates the key of a config RPC and returns its segments.
func configPath(rc *RequestContext, p *configKeyParams) ([]string, bool) {
	if err := rc.Params(p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return nil, false
	}
	if p.Key == "" {
		rc.RespondError("invalid_params", "key is required")
		return nil, false
	}
	if !isAllowedConfigPath(p.Key) {
		rc.RespondError("forbidden", "config path not accessible: "+p.Key)
		return nil, false
	}
	path, err := config.ParseConfigPath(p.Key)
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return nil, false
	}
	return path, true
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	var p configKeyParams
	path, ok := configPath(rc, &p)
	if !ok {
		return
	}

	s.mu.RLock()
	val, found := config.GetValueAtPath(s.configRaw, path)
	s.mu.RUnlock()
	if !found {
		rc.RespondError("not_found", "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

// rpcConfigSet updates the in-memory raw config. Changes apply after a
// restart once persisted with `captionbot config set`.
func (s *Server) rpcConfigSet(rc *RequestContext) {
	var p configKeyParams
	path, ok := configPath(rc, &p)
	if !ok {
		return
	}

	s.mu.Lock()
	config.SetValueAtPath(s.configRaw, path, p.Value)
	s.mu.Unlock()
	rc.Respond(map[string]any{"key": p.Key, "value": p.Value})
}

func (s *Server) rpcChannelsStatus(rc *RequestContext) {
	statuses := []domain.ChannelStatus{}
	if s.channels != nil {
		statuses = s.channels.Status()
	}
	rc.Respond(map[string]any{"channels": statuses})
}

// captionParams describe a synthetic message for the caption RPCs.
type captionParams struct {
	Text        string              `json:"text"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
	ChannelID   string              `json:"channelId,omitempty"`
}

func (p captionParams) message(connID string) domain.InboundMessage {
	channelID := p.ChannelID
	if channelID == "" {
		channelID = "gateway"
	}
	return domain.InboundMessage{
		ID:          uuid.NewString(),
		Type:        domain.ActivityMessage,
		ChannelID:   channelID,
		From:        connID,
		ChatID:      connID,
		ChatType:    domain.ChatTypeDM,
		Body:        p.Text,
		Attachments: p.Attachments,
		Timestamp:   time.Now(),
	}
}

func (s *Server) rpcCaptionResolve(rc *RequestContext) {
	var p captionParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	ref, err := resolver.Resolve(p.message(rc.Client.ConnID))
	if err != nil {
		rc.RespondError("no_image", err.Error())
		return
	}
	rc.Respond(ref)
}

func (s *Server) rpcCaptionDescribe(rc *RequestContext) {
	if s.dispatcher == nil {
		rc.RespondError("unavailable", "captioning is not configured")
		return
	}
	var p captionParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	var creds dispatch.CredentialProvider
	if p.ChannelID != "" && s.channels != nil {
		ch, ok := s.channels.Get(p.ChannelID)
		if !ok {
			rc.RespondError("not_found", "unknown channel: "+p.ChannelID)
			return
		}
		creds = ch
	}

	text, err := s.dispatcher.Describe(context.Background(), p.message(rc.Client.ConnID), creds)
	resp := map[string]any{"reply": dispatch.ReplyFor(text, err)}
	if err != nil {
		resp["error"] = err.Error()
	}
	rc.Respond(resp)
}
