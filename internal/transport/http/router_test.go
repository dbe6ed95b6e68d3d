package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodian/internal/platform/metrics"
	"custodian/pkg/domain"
	"custodian/pkg/platform/middleware/request"
	"custodian/pkg/requestcontext"
)

type stubValidator struct{ principal domain.Principal }

func (s stubValidator) ValidatePrincipal(token string) (domain.Principal, error) {
	if token != "good" {
		return domain.Principal{}, errors.New("invalid token")
	}
	return s.principal, nil
}

type echoModule struct{}

func (echoModule) Register(r chi.Router) {
	r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		_, _ = io.WriteString(w, requestcontext.Principal(ctx).ID.String()+"|"+requestcontext.RequestID(ctx))
	})
}

func newRouter(checks map[string]HealthCheck) (http.Handler, domain.Principal) {
	reg := prometheus.NewRegistry()
	p := domain.Principal{ID: domain.PrincipalID(uuid.New()), Capabilities: domain.CapabilitySet{domain.CapabilityStandard}}
	return NewRouter(RouterConfig{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Validator: stubValidator{principal: p},
		Metrics:   metrics.New(reg),
		Gatherer:  reg,
		Checks:    checks,
		Modules:   []Registrar{echoModule{}},
	}), p
}

func TestRouterAuthenticatesModules(t *testing.T) {
	router, p := newRouter(nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer good")
	req.Header.Set(request.HeaderRequestID, "req-1")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, p.ID.String()+"|req-1", w.Body.String())
}

func TestRouterOperationalEndpoints(t *testing.T) {
	down := errors.New("connection refused")
	router, _ := newRouter(map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return down },
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"database":"ok","redis":"unavailable"}}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "custodian_http_requests_total")
}
