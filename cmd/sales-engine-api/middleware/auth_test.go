package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/observability"
)

func echoClient() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(ClientFromContext(r.Context())))
	})
}

func TestAuth(t *testing.T) {
	handler := Auth(AuthConfig{Enabled: true, APIKeys: []string{"secret-key-1234"}})(echoClient())

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
		wantBody   string
	}{
		{name: "api key header", header: "X-API-Key", value: "secret-key-1234", wantStatus: http.StatusOK, wantBody: "key:****1234"},
		{name: "bearer token", header: "Authorization", value: "Bearer secret-key-1234", wantStatus: http.StatusOK, wantBody: "key:****1234"},
		{name: "missing", wantStatus: http.StatusUnauthorized},
		{name: "wrong key", header: "X-API-Key", value: "nope", wantStatus: http.StatusUnauthorized},
		{name: "basic scheme", header: "Authorization", value: "Basic abc", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/quotes/x", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestAuth_DisabledUsesDevClient(t *testing.T) {
	rec := httptest.NewRecorder()
	Auth(AuthConfig{})(echoClient()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev", rec.Body.String())
}

func TestRequestContext_PropagatesRequestID(t *testing.T) {
	var got string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = observability.RequestIDFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(chimiddleware.RequestIDHeader, "req-42")
	chimiddleware.RequestID(RequestContext(inner)).ServeHTTP(rec, req)

	assert.Equal(t, "req-42", got)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	handler := CORS([]string{"https://dealer.example.com"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/pricing/calculate", nil)
	req.Header.Set("Origin", "https://dealer.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dealer.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)
}
