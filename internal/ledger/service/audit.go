package service

import (
	"context"

	"custodian/internal/ledger/models"
	"custodian/pkg/domain"
	"custodian/pkg/platform/audit"
	"custodian/pkg/requestcontext"
)

func (s *Service) event(ctx context.Context, action audit.AuditEvent, actor domain.PrincipalID, req *models.ChangeRequest) audit.Event {
	e := audit.Event{
		Timestamp:     requestcontext.Now(ctx),
		ActorID:       actor,
		Action:        action.String(),
		CorrelationID: requestcontext.RequestID(ctx),
		ClientIP:      requestcontext.ClientIP(ctx),
		UserAgent:     requestcontext.UserAgent(ctx),
	}
	if req != nil {
		e.AssetID = req.AssetID
		e.RequestID = req.ID
		e.Detail = string(req.Kind)
	}
	return e
}

// emitCompliance logs and persists a compliance event. Inside a transaction
// a failure aborts the whole unit of work.
func (s *Service) emitCompliance(ctx context.Context, e audit.Event) error {
	s.logAudit(ctx, e)
	if s.audit == nil {
		return nil
	}
	return s.audit.Emit(ctx, e)
}

func (s *Service) emitSecurity(ctx context.Context, e audit.Event) {
	s.logger.WarnContext(ctx, e.Action,
		"event", e.Action,
		"log_type", "security",
		"actor_id", e.ActorID,
		"request_id", requestcontext.RequestID(ctx),
		"change_request_id", e.RequestID,
		"detail", e.Detail,
	)
	if s.security != nil {
		s.security.Emit(ctx, e)
	}
}

func (s *Service) trackOps(ctx context.Context, e audit.Event) {
	if s.ops != nil {
		s.ops.Track(ctx, e)
	}
}

func (s *Service) logAudit(ctx context.Context, e audit.Event) {
	s.logger.InfoContext(ctx, e.Action,
		"event", e.Action,
		"log_type", "audit",
		"actor_id", e.ActorID,
		"asset_id", e.AssetID,
		"change_request_id", e.RequestID,
		"decision", e.Decision,
		"request_id", requestcontext.RequestID(ctx),
	)
}
