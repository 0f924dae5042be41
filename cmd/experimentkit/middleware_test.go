package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/api/handlers"
	"github.com/BaSui01/experimentkit/config"
	"github.com/BaSui01/experimentkit/internal/ctxkeys"
	"github.com/BaSui01/experimentkit/internal/metrics"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// subjectEcho 把上下文中的 subject 写回响应体
var subjectEcho = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	sub, _ := ctxkeys.Subject(r.Context())
	_, _ = w.Write([]byte(sub))
})

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) handlers.Response {
	t.Helper()
	var resp handlers.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders()(okHandler)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}

func TestChain_OrderIsOutermostFirst(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(okHandler, mark("a"), mark("b"), mark("c"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ctxkeys.RequestID(r.Context())
	})
	handler := RequestID()(inner)

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		id := w.Header().Get(handlers.RequestIDHeader)
		assert.Len(t, id, 36)
		assert.Equal(t, id, seen)
	})

	t.Run("client supplied", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(handlers.RequestIDHeader, "trace-abc")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, "trace-abc", w.Header().Get(handlers.RequestIDHeader))
		assert.Equal(t, "trace-abc", seen)
	})
}

func TestRecovery_WritesEnvelope(t *testing.T) {
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := Chain(panicking, Recovery(zap.NewNop()), RequestID())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/agents/list", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeEnvelope(t, w)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
	assert.Equal(t, w.Header().Get(handlers.RequestIDHeader), resp.RequestID)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/api/v1/agents/execute", "/api/v1/agents/execute"},
		{"/api/v1/workflows/runs/0b6a3c5e-8f3f-4c1e-9a55-6f5f1f9c2d11", "/api/v1/workflows/runs/:id"},
		{"/api/v1/workflows/runs/12345", "/api/v1/workflows/runs/:id"},
		{"/api/v1/workflows/runs/latest", "/api/v1/workflows/runs/latest"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.path))
		})
	}
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry("test", reg, zap.NewNop())
	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := MetricsMiddleware(collector)(notFound)

	handler.ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodGet, "/api/v1/workflows/runs/0b6a3c5e-8f3f-4c1e-9a55-6f5f1f9c2d11", nil))

	expected := `
# HELP test_http_requests_total Total number of HTTP requests
# TYPE test_http_requests_total counter
test_http_requests_total{method="GET",path="/api/v1/workflows/runs/:id",status="4xx"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_http_requests_total"))
}

func TestOTelTracing_RecordsServerSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	handler := Chain(failing, RequestID(), OTelTracing())

	r := httptest.NewRequest(http.MethodPost, "/api/v1/llm/complete", nil)
	r.Header.Set(handlers.RequestIDHeader, "req-otel")
	handler.ServeHTTP(httptest.NewRecorder(), r)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "POST /api/v1/llm/complete", span.Name())
	assert.Contains(t, span.Attributes(), attribute.Int("http.response.status_code", http.StatusBadGateway))
	assert.Contains(t, span.Attributes(), attribute.String("request.id", "req-otel"))
	assert.Equal(t, "Error", span.Status().Code.String())
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"allowed origin", []string{"https://app.example.com"}, http.MethodGet, "https://app.example.com", http.StatusOK, "https://app.example.com"},
		{"allowed preflight", []string{"https://app.example.com"}, http.MethodOptions, "https://app.example.com", http.StatusNoContent, "https://app.example.com"},
		{"unknown origin passes without header", []string{"https://app.example.com"}, http.MethodGet, "https://evil.example.com", http.StatusOK, ""},
		{"unknown preflight rejected", nil, http.MethodOptions, "https://evil.example.com", http.StatusForbidden, ""},
		{"wildcard", []string{"*"}, http.MethodGet, "https://any.example.com", http.StatusOK, "https://any.example.com"},
		{"same origin", nil, http.MethodGet, "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := CORS(tt.allowed)(okHandler)
			r := httptest.NewRequest(tt.method, "/api/v1/agents/list", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantAllow, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimiter(ctx, 0.01, 1, zap.NewNop())(okHandler)

	send := func(remote, subject string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/agents/list", nil)
		r.RemoteAddr = remote
		if subject != "" {
			r = r.WithContext(ctxkeys.WithSubject(r.Context(), subject))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1234", "").Code)

	limited := send("10.0.0.1:5678", "")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))
	resp := decodeEnvelope(t, limited)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "RATE_LIMITED", resp.Error.Code)
	assert.True(t, resp.Error.Retryable)

	assert.Equal(t, http.StatusOK, send("10.0.0.2:1234", "").Code, "other IPs have their own bucket")
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1234", "alice").Code, "subjects are limited separately from IPs")
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.3:1234", "alice").Code, "a subject keeps its bucket across IPs")
}

func TestRateLimiter_DisabledWhenRPSZero(t *testing.T) {
	handler := RateLimiter(context.Background(), 0, 0, zap.NewNop())(okHandler)
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	skip := []string{"/health"}
	tests := []struct {
		name        string
		allowQuery  bool
		path        string
		header      string
		wantStatus  int
		wantSubject string
	}{
		{name: "missing key", path: "/api/v1/agents/list", wantStatus: http.StatusUnauthorized},
		{name: "wrong key", path: "/api/v1/agents/list", header: "nope", wantStatus: http.StatusUnauthorized},
		{name: "second key", path: "/api/v1/agents/list", header: "key-b", wantStatus: http.StatusOK, wantSubject: "api_key:1"},
		{name: "skipped path", path: "/health", wantStatus: http.StatusOK},
		{name: "query key disabled", path: "/api/v1/agents/list?api_key=key-a", wantStatus: http.StatusUnauthorized},
		{name: "query key enabled", allowQuery: true, path: "/api/v1/agents/list?api_key=key-a", wantStatus: http.StatusOK, wantSubject: "api_key:0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := APIKeyAuth([]string{"key-a", "key-b"}, skip, tt.allowQuery, zap.NewNop())(subjectEcho)
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				r.Header.Set("X-API-Key", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				resp := decodeEnvelope(t, w)
				require.NotNil(t, resp.Error)
				assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
				return
			}
			assert.Equal(t, tt.wantSubject, w.Body.String())
		})
	}
}

func TestJWTAuth_HS256(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "s3cret", JWTIssuer: "experimentkit"}
	handler := JWTAuth(cfg, []string{"/health"}, zap.NewNop())(subjectEcho)

	sign := func(claims jwt.RegisteredClaims, secret string) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return tok
	}
	valid := jwt.RegisteredClaims{
		Subject:   "alice",
		Issuer:    "experimentkit",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	wrongIssuer := valid
	wrongIssuer.Issuer = "someone-else"
	noExpiry := valid
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name       string
		path       string
		auth       string
		wantStatus int
	}{
		{"valid", "/api/v1/agents/list", "Bearer " + sign(valid, "s3cret"), http.StatusOK},
		{"missing header", "/api/v1/agents/list", "", http.StatusUnauthorized},
		{"not bearer", "/api/v1/agents/list", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "/api/v1/agents/list", "Bearer " + sign(valid, "other"), http.StatusUnauthorized},
		{"expired", "/api/v1/agents/list", "Bearer " + sign(expired, "s3cret"), http.StatusUnauthorized},
		{"wrong issuer", "/api/v1/agents/list", "Bearer " + sign(wrongIssuer, "s3cret"), http.StatusUnauthorized},
		{"no expiry", "/api/v1/agents/list", "Bearer " + sign(noExpiry, "s3cret"), http.StatusUnauthorized},
		{"skipped path", "/health", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.auth != "" {
				r.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.name == "valid" {
				assert.Equal(t, "alice", w.Body.String())
			}
		})
	}
}

func TestJWTAuth_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	handler := JWTAuth(config.AuthConfig{JWTPublicKey: string(pubPEM)}, nil, zap.NewNop())(subjectEcho)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Subject:   "svc-reporter",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(key)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/workflows/runs", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "svc-reporter", w.Body.String())

	// HS256 is rejected when only a public key is configured
	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "mallory",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(pubPEM)
	require.NoError(t, err)
	r = httptest.NewRequest(http.MethodGet, "/api/v1/workflows/runs", nil)
	r.Header.Set("Authorization", "Bearer "+hs)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
