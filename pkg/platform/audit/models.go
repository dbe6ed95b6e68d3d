package audit

import (
	"context"
	"time"

	"custodian/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so that
// retention and routing can differ per category.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: every
	// submission, resolution and annotation of a change request.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring, such as
	// denied resolutions and lost resolution races.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity that can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from the ledger service to capture key actions. It is
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	ActorID   domain.PrincipalID
	AssetID   domain.AssetID
	RequestID domain.ChangeRequestID
	Action    string
	Decision  string
	Detail    string
	// CorrelationID is the HTTP request id, when the action came over HTTP.
	CorrelationID string
	ClientIP      string
	UserAgent     string
}

// Store persists audit events. Postgres implementations write to the
// transactional outbox using the transaction carried on ctx.
type Store interface {
	Append(ctx context.Context, event Event) error
}

type AuditEvent string

const (
	EventChangeRequestSubmitted AuditEvent = "change_request_submitted"
	EventChangeRequestApproved  AuditEvent = "change_request_approved"
	EventChangeRequestRejected  AuditEvent = "change_request_rejected"
	EventChangeRequestAnnotated AuditEvent = "change_request_annotated"
	EventAssetCreated           AuditEvent = "asset_created"
	EventAssetReassigned        AuditEvent = "asset_reassigned"

	EventResolutionDenied   AuditEvent = "resolution_denied"
	EventResolutionConflict AuditEvent = "resolution_conflict"

	EventHistoryViewed AuditEvent = "history_viewed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventChangeRequestSubmitted: CategoryCompliance,
	EventChangeRequestApproved:  CategoryCompliance,
	EventChangeRequestRejected:  CategoryCompliance,
	EventChangeRequestAnnotated: CategoryCompliance,
	EventAssetCreated:           CategoryCompliance,
	EventAssetReassigned:        CategoryCompliance,

	EventResolutionDenied:   CategorySecurity,
	EventResolutionConflict: CategorySecurity,

	EventHistoryViewed: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

func (e AuditEvent) String() string { return string(e) }
