package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wyxpro/CubeAI-FlowDecompose/config"
	"github.com/wyxpro/CubeAI-FlowDecompose/internal/ctxkeys"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestSecurityHeaders(t *testing.T) {
	w := serve(SecurityHeaders()(okHandler()), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
}

func TestSecurityHeaders_ChainedWithOtherMiddleware(t *testing.T) {
	handler := Chain(okHandler(), SecurityHeaders(), RequestID())
	w := serve(handler, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ctxkeys.RequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "client-42")
	w := serve(handler, r)
	assert.Equal(t, "client-42", seen)
	assert.Equal(t, "client-42", w.Header().Get("X-Request-ID"))

	w = serve(handler, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Regexp(t, `^req-[0-9a-f]{32}$`, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	serve(Chain(okHandler(), mark("a"), mark("b"), mark("c")), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRecovery(t *testing.T) {
	handler := Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := serve(handler, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/health", "/health"},
		{"/v1/video-analysis/jobs", "/v1/video-analysis/jobs"},
		{"/v1/video-analysis/jobs/job_3f9a1c2b7d4e", "/v1/video-analysis/jobs/:id"},
		{"/v1/video-analysis/jobs/job_3f9a1c2b7d4e/stream", "/v1/video-analysis/jobs/:id/stream"},
		{"/v1/video-analysis/virtual-motion/jobs/vm_0a1b2c3d4e5f", "/v1/video-analysis/virtual-motion/jobs/:id"},
		{"/v1/terminology/shots/list", "/v1/terminology/shots/list"},
		{"/v1/terminology/shots/dolly_in", "/v1/terminology/shots/:key"},
		{"/v1/terminology/shots/translate/dolly_in", "/v1/terminology/shots/translate/:key"},
		{"/items/123", "/items/:id"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.in))
		})
	}
}

type httpCall struct {
	method, path string
	status       int
	respSize     int64
}

type fakeHTTPRecorder struct {
	mu    sync.Mutex
	calls []httpCall
}

func (f *fakeHTTPRecorder) RecordHTTPRequest(method, path string, status int, _ time.Duration, _, responseSize int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, httpCall{method, path, status, responseSize})
}

func TestMetricsMiddleware(t *testing.T) {
	rec := &fakeHTTPRecorder{}
	handler := MetricsMiddleware(rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("missing"))
	}))

	serve(handler, httptest.NewRequest(http.MethodGet, "/v1/video-analysis/jobs/job_aaaaaaaaaaaa", nil))

	require.Len(t, rec.calls, 1)
	assert.Equal(t, httpCall{"GET", "/v1/video-analysis/jobs/:id", http.StatusNotFound, 7}, rec.calls[0])
}

func TestAPIKeyAuth(t *testing.T) {
	handler := APIKeyAuth([]string{"k-123456"}, publicPaths, zap.NewNop())(okHandler())

	w := serve(handler, httptest.NewRequest(http.MethodGet, "/v1/video-analysis/jobs", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r := httptest.NewRequest(http.MethodGet, "/v1/video-analysis/jobs", nil)
	r.Header.Set("X-API-Key", "k-123456")
	assert.Equal(t, http.StatusOK, serve(handler, r).Code)

	// WebSocket 客户端通过 query 传递
	r = httptest.NewRequest(http.MethodGet, "/v1/video-analysis/jobs/job_1/stream?api_key=k-123456", nil)
	assert.Equal(t, http.StatusOK, serve(handler, r).Code)

	assert.Equal(t, http.StatusOK, serve(handler, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}

func TestAPIKeyAuth_NoKeysConfigured(t *testing.T) {
	handler := APIKeyAuth(nil, publicPaths, zap.NewNop())(okHandler())
	assert.Equal(t, http.StatusOK, serve(handler, httptest.NewRequest(http.MethodGet, "/v1/video-analysis/jobs", nil)).Code)
}

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTAuth(t *testing.T) {
	cfg := config.JWTConfig{Secret: "jwt-secret", Issuer: "flowdecompose"}

	var subject string
	handler := JWTAuth(cfg, publicPaths, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ = ctxkeys.Subject(r.Context())
	}))

	valid := jwt.RegisteredClaims{
		Subject:   "editor-7",
		Issuer:    "flowdecompose",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"valid", signToken(t, "jwt-secret", valid), http.StatusOK},
		{"wrong secret", signToken(t, "other", valid), http.StatusUnauthorized},
		{"wrong issuer", signToken(t, "jwt-secret", jwt.RegisteredClaims{Subject: "x", Issuer: "someone-else"}), http.StatusUnauthorized},
		{"expired", signToken(t, "jwt-secret", jwt.RegisteredClaims{
			Subject:   "x",
			Issuer:    "flowdecompose",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}), http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject = ""
			r := httptest.NewRequest(http.MethodGet, "/v1/video-analysis/jobs", nil)
			if tt.token != "" {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := serve(handler, r)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "editor-7", subject)
			}
		})
	}

	assert.Equal(t, http.StatusOK, serve(handler, httptest.NewRequest(http.MethodGet, "/ready", nil)).Code)
}

func TestAuth_PrefersJWT(t *testing.T) {
	cfg := config.ServerConfig{
		APIKeys: []string{"k-123456"},
		JWT:     config.JWTConfig{Secret: "jwt-secret"},
	}
	handler := Auth(cfg, publicPaths, zap.NewNop())(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/v1/video-analysis/jobs", nil)
	r.Header.Set("X-API-Key", "k-123456")
	assert.Equal(t, http.StatusUnauthorized, serve(handler, r).Code)
	assert.Equal(t, "jwt", describeAuth(cfg))
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := RateLimiter(ctx, 1, 2, zap.NewNop())(okHandler())
	r := httptest.NewRequest(http.MethodGet, "/v1/video-analysis/jobs", nil)
	r.RemoteAddr = "10.0.0.1:5000"

	assert.Equal(t, http.StatusOK, serve(handler, r).Code)
	assert.Equal(t, http.StatusOK, serve(handler, r).Code)
	w := serve(handler, r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")

	// 其他 IP 独立计数
	other := httptest.NewRequest(http.MethodGet, "/v1/video-analysis/jobs", nil)
	other.RemoteAddr = "10.0.0.2:5000"
	assert.Equal(t, http.StatusOK, serve(handler, other).Code)
}

func TestRateLimiter_Disabled(t *testing.T) {
	handler := RateLimiter(context.Background(), 0, 0, zap.NewNop())(okHandler())
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(handler, r).Code)
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://studio.example.com"})(okHandler())

	r := httptest.NewRequest(http.MethodOptions, "/v1/video-analysis/jobs", nil)
	r.Header.Set("Origin", "https://studio.example.com")
	w := serve(handler, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://studio.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodOptions, "/v1/video-analysis/jobs", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	w = serve(handler, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(handler, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
