package testutil

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"custodian/pkg/domain"
	"custodian/pkg/requestcontext"
)

// NewPrincipal returns a principal with a fresh id holding caps.
func NewPrincipal(caps ...domain.Capability) domain.Principal {
	return domain.Principal{ID: domain.PrincipalID(uuid.New()), Capabilities: domain.CapabilitySet(caps)}
}

// WithPrincipal simulates what the auth middleware does for an
// authenticated request.
func WithPrincipal(req *http.Request, p domain.Principal) *http.Request {
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), p))
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
