// Package history renders an asset's change requests as a role-scoped timeline.
package history

import (
	"errors"
	"slices"
	"time"

	"custodian/internal/ledger/models"
	"custodian/internal/ledger/policy"
	"custodian/internal/ledger/versioning"
	"custodian/pkg/domain"
)

// Entry is one change request as shown on the timeline.
type Entry struct {
	RequestID     domain.ChangeRequestID
	Code          string
	Kind          models.OperationKind
	State         models.State
	ProposerID    domain.PrincipalID
	Justification string
	CreatedAt     time.Time
	Diffs         []models.DiffEntry
	Review        *models.Review
	AuditNotes    []models.AuditNote
	// Version is set on approved entries of the restricted timeline: the
	// version the asset reached when this request was applied. Privileged
	// timelines mix states and carry no versions.
	Version *versioning.Version
}

// Project returns the timeline visible to viewer, most recent first.
//
// Reviewers and auditors see every request without version annotations.
// Everyone else sees approved requests only, with versions replayed over
// exactly that filtered sequence.
func Project(requests []*models.ChangeRequest, viewer domain.CapabilitySet) ([]Entry, error) {
	ordered := slices.Clone(requests)
	models.SortBySequence(ordered)

	full := policy.Can(viewer, policy.ActionViewAll)
	visible := make([]*models.ChangeRequest, 0, len(ordered))
	for _, r := range ordered {
		if full || r.State == models.StateApproved {
			visible = append(visible, r)
		}
	}

	versions := make(map[domain.ChangeRequestID]versioning.Version)
	if !full {
		steps, err := versioning.Replay(visible)
		switch {
		case errors.Is(err, versioning.ErrUnversioned):
		case err != nil:
			return nil, err
		default:
			for _, st := range steps {
				versions[st.Request.ID] = st.Version
			}
		}
	}

	out := make([]Entry, 0, len(visible))
	for i := len(visible) - 1; i >= 0; i-- {
		r := visible[i]
		e := Entry{
			RequestID:     r.ID,
			Code:          r.Code,
			Kind:          r.Kind,
			State:         r.State,
			ProposerID:    r.ProposerID,
			Justification: r.Justification,
			CreatedAt:     r.CreatedAt,
			Diffs:         slices.Clone(r.Diffs),
			AuditNotes:    slices.Clone(r.AuditNotes),
		}
		if r.Review != nil {
			rv := *r.Review
			e.Review = &rv
		}
		if v, ok := versions[r.ID]; ok {
			e.Version = &v
		}
		out = append(out, e)
	}
	return out, nil
}
