package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte("ok"))
})

func serve(h http.Handler, method, origin string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/messages", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestLoggingMiddleware_PassesThrough(t *testing.T) {
	rr := serve(loggingMiddleware(okHandler, testLog()), http.MethodPost, "", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestRequestIDMiddleware(t *testing.T) {
	rr := serve(requestIDMiddleware(okHandler), http.MethodGet, "", nil)
	assert.Len(t, rr.Header().Get(requestIDHeader), 36)

	rr = serve(requestIDMiddleware(okHandler), http.MethodGet, "", map[string]string{requestIDHeader: "abc-123"})
	assert.Equal(t, "abc-123", rr.Header().Get(requestIDHeader))
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"unconfigured denies", nil, "http://localhost:3000", ""},
		{"wildcard echoes origin", []string{"*"}, "http://localhost:3000", "http://localhost:3000"},
		{"listed origin", []string{"http://allowed.com"}, "http://allowed.com", "http://allowed.com"},
		{"unlisted origin", []string{"http://allowed.com"}, "http://evil.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(corsMiddleware(okHandler, tt.allowed), http.MethodGet, tt.origin, nil)
			assert.Equal(t, tt.want, rr.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, http.StatusAccepted, rr.Code)
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	rr := serve(corsMiddleware(okHandler, []string{"*"}), http.MethodOptions, "http://x.com", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestWithMiddleware(t *testing.T) {
	rr := serve(withMiddleware(okHandler, testLog(), nil), http.MethodPost, "http://test.com", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(requestIDHeader))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))

	rr = serve(withMiddleware(okHandler, testLog(), []string{"http://test.com"}), http.MethodPost, "http://test.com", nil)
	assert.Equal(t, "http://test.com", rr.Header().Get("Access-Control-Allow-Origin"))
}
