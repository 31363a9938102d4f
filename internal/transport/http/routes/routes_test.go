package routes_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"github.com/dmflow/auth-service/internal/infra/config"
	"github.com/dmflow/auth-service/internal/infra/mailer"
	"github.com/dmflow/auth-service/internal/infra/security"
	"github.com/dmflow/auth-service/internal/repository/memory"
	httproutes "github.com/dmflow/auth-service/internal/transport/http/routes"
	"github.com/dmflow/auth-service/internal/usecase"
)

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("down") }

func newRouter(t *testing.T, readiness map[string]httproutes.Pinger) (*gin.Engine, *prometheus.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zaptest.NewLogger(t)
	hasher, err := security.NewPasswordHasher(security.DefaultArgon2Config())
	if err != nil {
		t.Fatalf("NewPasswordHasher: %v", err)
	}
	tokens, err := security.NewSessionTokenIssuer("routes-secret", 0)
	if err != nil {
		t.Fatalf("NewSessionTokenIssuer: %v", err)
	}
	auth := usecase.NewAuthService(memory.NewAccountRepository(), hasher, security.OTPGenerator{}, mailer.NewLogSender(logger), tokens)

	reg := prometheus.NewRegistry()
	r, err := httproutes.Register(httproutes.Dependencies{
		Config:    &config.AppConfig{App: config.AppSettings{Env: "test"}, CORS: config.CORSSettings{AllowedOrigins: []string{"*"}}},
		Logger:    logger,
		Auth:      auth,
		Readiness: readiness,
		Registry:  reg,
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	return r, reg
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newRouter(t, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" || w.Header().Get("X-Trace-ID") == "" {
		t.Fatalf("expected correlation headers, got %v", w.Header())
	}
}

func TestWelcomeAndReadiness(t *testing.T) {
	r, _ := newRouter(t, map[string]httproutes.Pinger{
		"store": memory.NewAccountRepository(),
		"redis": failingPinger{},
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Welcome") {
		t.Fatalf("unexpected welcome response %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestRegisterRouteAndMetrics(t *testing.T) {
	r, _ := newRouter(t, nil)

	body := `{"name":"Ada","email":"ada@example.com","password":"s3cret"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/users/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `auth_http_requests_total{method="POST",route="/api/users/register",status="201"} 1`) {
		t.Fatalf("expected register request to be counted:\n%s", w.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/users/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected wildcard origin, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}
