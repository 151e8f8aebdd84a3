package gateway

import (
	"crypto/subtle"
	"net"
	"os"
	"sync"
	"time"

	"github.com/soyeahso/captionbot/internal/config"
)

// AuthResult is the outcome of a control-plane authentication attempt.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ResolvedAuth is the gateway auth config after env fallbacks.
type ResolvedAuth struct {
	Mode     string
	Token    string
	Password string
}

// ResolveAuth fills empty credentials from CAPTIONBOT_GATEWAY_TOKEN and
// CAPTIONBOT_GATEWAY_PASSWORD. An empty mode becomes "password" when a
// password is known, otherwise "token".
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	auth := ResolvedAuth{Mode: cfg.Mode, Token: cfg.Token, Password: cfg.Password}
	if auth.Token == "" {
		auth.Token = os.Getenv("CAPTIONBOT_GATEWAY_TOKEN")
	}
	if auth.Password == "" {
		auth.Password = os.Getenv("CAPTIONBOT_GATEWAY_PASSWORD")
	}
	if auth.Mode == "" {
		auth.Mode = "token"
		if auth.Password != "" {
			auth.Mode = "password"
		}
	}
	return auth
}

// Authorize checks client credentials against the server auth.
func Authorize(server ResolvedAuth, client *ConnectAuth) AuthResult {
	if client == nil {
		return AuthResult{Reason: "no credentials provided"}
	}

	var want, got string
	switch server.Mode {
	case "token":
		want, got = server.Token, client.Token
	case "password":
		want, got = server.Password, client.Password
	default:
		return AuthResult{Reason: "unknown auth mode: " + server.Mode}
	}

	switch {
	case want == "":
		return AuthResult{Reason: "server " + server.Mode + " not configured"}
	case got == "":
		return AuthResult{Reason: server.Mode + " required"}
	case !safeEqual(got, want):
		return AuthResult{Reason: server.Mode + "_mismatch"}
	}
	return AuthResult{OK: true, Method: server.Mode}
}

// safeEqual compares in constant time without leaking the length.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxIPs   = 10000
)

// authRateLimiter counts failed handshakes per remote host inside a sliding
// window. Stale entries are pruned lazily.
type authRateLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	now      func() time.Time
}

func newAuthRateLimiter() *authRateLimiter {
	return &authRateLimiter{
		failures: make(map[string][]time.Time),
		now:      time.Now,
	}
}

func remoteHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
		return host
	}
	return remoteAddr
}

// recent drops expired failures for host. Caller holds mu.
func (l *authRateLimiter) recent(host string) []time.Time {
	cutoff := l.now().Add(-authRateWindow)
	times := l.failures[host]
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.failures, host)
		return nil
	}
	l.failures[host] = kept
	return kept
}

func (l *authRateLimiter) allow(remoteAddr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recent(remoteHost(remoteAddr))) < authRateMaxFails
}

func (l *authRateLimiter) recordFailure(remoteAddr string) {
	host := remoteHost(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, tracked := l.failures[host]; !tracked && len(l.failures) >= authRateMaxIPs {
		l.evictOldest()
	}
	l.failures[host] = append(l.recent(host), l.now())
}

// evictOldest removes the host with the oldest first failure. Caller holds mu.
func (l *authRateLimiter) evictOldest() {
	var oldest string
	var at time.Time
	for host, times := range l.failures {
		if len(times) > 0 && (oldest == "" || times[0].Before(at)) {
			oldest, at = host, times[0]
		}
	}
	if oldest != "" {
		delete(l.failures, oldest)
	}
}
