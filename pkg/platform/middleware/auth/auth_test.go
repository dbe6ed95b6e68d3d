package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"custodian/pkg/domain"
	"custodian/pkg/requestcontext"
)

type stubValidator struct {
	principal domain.Principal
	err       error
	seen      string
}

func (s *stubValidator) ValidatePrincipal(token string) (domain.Principal, error) {
	s.seen = token
	return s.principal, s.err
}

func TestRequirePrincipal(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	principal := domain.Principal{
		ID:           domain.PrincipalID(uuid.New()),
		Capabilities: domain.CapabilitySet{domain.CapabilityAudit},
	}

	var got domain.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.Principal(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("valid token stores principal", func(t *testing.T) {
		v := &stubValidator{principal: principal}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer abc.def.ghi")
		w := httptest.NewRecorder()

		RequirePrincipal(v, logger)(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "abc.def.ghi", v.seen)
		assert.Equal(t, principal, got)
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		RequirePrincipal(&stubValidator{}, logger)(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"unauthorized","error_description":"Missing or invalid Authorization header"}`, w.Body.String())
	})

	t.Run("rejected token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer expired")
		w := httptest.NewRecorder()

		RequirePrincipal(&stubValidator{err: errors.New("token has expired")}, logger)(next).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
