package versioning

import (
	"fmt"
	"time"

	"custodian/internal/ledger/models"
)

// Step is one approved request together with the version it produced.
type Step struct {
	Request  *models.ChangeRequest
	Severity Severity
	Version  Version
}

// Replay walks approved requests oldest first and returns the version after
// each. The first request must be the creation, which yields Initial.
// Non-approved requests in the input are ignored.
func Replay(approved []*models.ChangeRequest) ([]Step, error) {
	steps := make([]Step, 0, len(approved))
	var current Version
	for _, r := range approved {
		if r.State != models.StateApproved {
			continue
		}
		if len(steps) == 0 {
			if r.Kind != models.KindCreation {
				return nil, fmt.Errorf("%w: first approved request %s is a %s", ErrUnversioned, r.Code, r.Kind)
			}
			current = Initial
			steps = append(steps, Step{Request: r, Severity: SeverityMajor, Version: current})
			continue
		}
		if r.Kind == models.KindCreation {
			return nil, fmt.Errorf("second approved creation %s", r.Code)
		}
		sev := Classify(r.Fields())
		current = current.Bump(sev)
		steps = append(steps, Step{Request: r, Severity: sev, Version: current})
	}
	if len(steps) == 0 {
		return nil, ErrUnversioned
	}
	return steps, nil
}

// Derive returns the current version for an ordered approved history.
func Derive(approved []*models.ChangeRequest) (Version, error) {
	steps, err := Replay(approved)
	if err != nil {
		return Version{}, err
	}
	return steps[len(steps)-1].Version, nil
}

// DeriveAsOf returns the version in effect at t. approved must be in apply
// order. An approval counts once it and every approval applied before it
// carry a review time at or before t, so the replayed set is always a prefix
// of the apply order.
func DeriveAsOf(approved []*models.ChangeRequest, t time.Time) (Version, error) {
	prefix := make([]*models.ChangeRequest, 0, len(approved))
	for _, r := range approved {
		if r.State != models.StateApproved {
			continue
		}
		if r.SequenceTime().After(t) {
			break
		}
		prefix = append(prefix, r)
	}
	return Derive(prefix)
}
