// Package policy is the single place that maps capabilities to ledger actions.
package policy

import (
	"custodian/internal/ledger/models"
	"custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
)

type Action string

const (
	ActionSubmit       Action = "submit"
	ActionResolve      Action = "resolve"
	ActionAnnotate     Action = "annotate"
	ActionViewAll      Action = "view_all"
	ActionReviewQueue  Action = "review_queue"
	ActionViewApproved Action = "view_approved"
)

// Policy holds the tunable parts of the access rules.
type Policy struct {
	// AllowPendingAuditAnnotations lets auditors annotate requests that are
	// still awaiting review. When false, annotation requires a terminal state.
	AllowPendingAuditAnnotations bool
}

// Default returns the policy the ledger ships with.
func Default() Policy {
	return Policy{AllowPendingAuditAnnotations: true}
}

// Can reports whether caps permit action.
func Can(caps domain.CapabilitySet, action Action) bool {
	switch action {
	case ActionSubmit, ActionViewApproved:
		return len(caps) > 0
	case ActionResolve:
		return caps.Has(domain.CapabilitySecurityReview)
	case ActionAnnotate:
		return caps.Has(domain.CapabilityAudit)
	case ActionViewAll, ActionReviewQueue:
		return caps.HasAny(domain.CapabilitySecurityReview, domain.CapabilityAudit)
	default:
		return false
	}
}

// Require returns CodeForbidden when p may not perform action.
func Require(p domain.Principal, action Action) error {
	if p.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "principal required")
	}
	if !Can(p.Capabilities, action) {
		return dErrors.New(dErrors.CodeForbidden, "principal lacks capability for "+string(action))
	}
	return nil
}

// CheckAnnotate applies the annotation rule, including the pending-state flag.
func (pol Policy) CheckAnnotate(p domain.Principal, req *models.ChangeRequest) error {
	if err := Require(p, ActionAnnotate); err != nil {
		return err
	}
	if req.IsPending() && !pol.AllowPendingAuditAnnotations {
		return dErrors.New(dErrors.CodeConflict, "audit annotations require a resolved change request")
	}
	return nil
}

// CanViewRequest reports whether p may read req in full.
func CanViewRequest(p domain.Principal, req *models.ChangeRequest) bool {
	if Can(p.Capabilities, ActionViewAll) {
		return true
	}
	return p.ID == req.ProposerID || req.State == models.StateApproved
}
