package models

import (
	"cmp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
)

const (
	MinJustificationLength = 10
	MaxJustificationLength = 2000
	MaxCommentLength       = 2000
)

// Review is the security review sub-record written on resolution.
type Review struct {
	ReviewerID domain.PrincipalID
	ReviewedAt time.Time
	Decision   State
	Comment    string
	// Sequence is the position of an approval in apply order, drawn while
	// the asset row is locked. Zero for rejections.
	Sequence int64
}

// AuditNote is an annotation by an audit principal. It never changes state.
type AuditNote struct {
	AuditorID domain.PrincipalID
	CreatedAt time.Time
	Comment   string
}

// ChangeRequest is a proposed creation or modification of an asset.
// State leaves pending exactly once; diffs are immutable after construction.
type ChangeRequest struct {
	ID            domain.ChangeRequestID
	Code          string
	CreatedAt     time.Time
	State         State
	Kind          OperationKind
	AssetID       domain.AssetID
	ProposerID    domain.PrincipalID
	Justification string
	Diffs         []DiffEntry
	Review        *Review
	AuditNotes    []AuditNote
}

// NewChangeRequest constructs a pending request, enforcing construction invariants.
func NewChangeRequest(
	id domain.ChangeRequestID,
	code string,
	kind OperationKind,
	assetID domain.AssetID,
	proposer domain.PrincipalID,
	justification string,
	diffs []DiffEntry,
	now time.Time,
) (*ChangeRequest, error) {
	justification = strings.TrimSpace(justification)
	if err := ValidateJustification(justification); err != nil {
		return nil, err
	}
	if len(diffs) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "change request requires at least one diff entry")
	}
	if assetID.IsNil() || proposer.IsNil() || id.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "change request requires id, asset and proposer")
	}
	for _, d := range diffs {
		if (kind == KindCreation) == d.HasPrior() {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "previous values must be absent exactly for creation entries")
		}
	}
	return &ChangeRequest{
		ID:            id,
		Code:          code,
		CreatedAt:     now,
		State:         StatePending,
		Kind:          kind,
		AssetID:       assetID,
		ProposerID:    proposer,
		Justification: justification,
		Diffs:         slices.Clone(diffs),
	}, nil
}

// ValidateJustification checks the trimmed justification length bounds.
func ValidateJustification(s string) error {
	n := utf8.RuneCountInString(s)
	if n < MinJustificationLength {
		return dErrors.NewField(dErrors.CodeValidation, "justification", "justification must be at least 10 characters")
	}
	if n > MaxJustificationLength {
		return dErrors.NewField(dErrors.CodeValidation, "justification", "justification must be at most 2000 characters")
	}
	return nil
}

// IsPending reports whether the request awaits review.
func (r *ChangeRequest) IsPending() bool { return r.State == StatePending }

// CanResolve checks the terminal-state guard.
func (r *ChangeRequest) CanResolve() error {
	if r.State.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "change request already resolved")
	}
	return nil
}

// ApplyResolution moves the request into a terminal state. Callers must
// check CanResolve under the same lock.
func (r *ChangeRequest) ApplyResolution(decision State, reviewer domain.PrincipalID, comment string, now time.Time) {
	r.State = decision
	r.Review = &Review{
		ReviewerID: reviewer,
		ReviewedAt: now,
		Decision:   decision,
		Comment:    comment,
	}
}

// AddAuditNote appends an audit annotation without touching state.
func (r *ChangeRequest) AddAuditNote(auditor domain.PrincipalID, comment string, now time.Time) {
	r.AuditNotes = append(r.AuditNotes, AuditNote{
		AuditorID: auditor,
		CreatedAt: now,
		Comment:   comment,
	})
}

// Fields lists the fields touched by the request in diff order.
func (r *ChangeRequest) Fields() []Field {
	out := make([]Field, len(r.Diffs))
	for i, d := range r.Diffs {
		out[i] = d.Field
	}
	return out
}

// ResolvedAt returns the review timestamp, or the zero time while pending.
func (r *ChangeRequest) ResolvedAt() time.Time {
	if r.Review == nil {
		return time.Time{}
	}
	return r.Review.ReviewedAt
}

// Clone returns a deep copy.
func (r *ChangeRequest) Clone() *ChangeRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.Diffs = slices.Clone(r.Diffs)
	c.AuditNotes = slices.Clone(r.AuditNotes)
	if r.Review != nil {
		rv := *r.Review
		c.Review = &rv
	}
	return &c
}

// SequenceTime orders requests on an asset's timeline: resolved requests by
// their resolution time, pending ones by submission time.
func (r *ChangeRequest) SequenceTime() time.Time {
	if r.Review != nil {
		return r.Review.ReviewedAt
	}
	return r.CreatedAt
}

// ApplySequence returns the approval's position in apply order, or zero
// when the request was not approved.
func (r *ChangeRequest) ApplySequence() int64 {
	if r.State != StateApproved || r.Review == nil {
		return 0
	}
	return r.Review.Sequence
}

// SortBySequence orders requests oldest first by SequenceTime, breaking ties
// by submission time and then human code. Approved requests are then
// reordered among their own slots by ApplySequence, because review
// timestamps come from the request clock and can disagree with the order in
// which approvals actually committed.
func SortBySequence(reqs []*ChangeRequest) {
	slices.SortStableFunc(reqs, func(a, b *ChangeRequest) int {
		if c := a.SequenceTime().Compare(b.SequenceTime()); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Code, b.Code)
	})

	var slots []int
	var approved []*ChangeRequest
	for i, r := range reqs {
		if r.State == StateApproved {
			slots = append(slots, i)
			approved = append(approved, r)
		}
	}
	slices.SortStableFunc(approved, func(a, b *ChangeRequest) int {
		return cmp.Compare(a.ApplySequence(), b.ApplySequence())
	})
	for i, slot := range slots {
		reqs[slot] = approved[i]
	}
}
