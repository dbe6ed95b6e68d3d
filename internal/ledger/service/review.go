package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"custodian/internal/ledger/apply"
	"custodian/internal/ledger/models"
	"custodian/internal/ledger/policy"
	"custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/audit"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/requestcontext"
)

// Resolution is the outcome of approving or rejecting a change request.
// Asset is the asset after the approval was applied, or nil when rejected.
type Resolution struct {
	Request *models.ChangeRequest
	Asset   *models.Asset
}

// Approve applies the request's diff to the asset and records the decision
// in one transaction. If any step fails nothing is persisted.
func (s *Service) Approve(ctx context.Context, p domain.Principal, id domain.ChangeRequestID, comment string) (*Resolution, error) {
	return s.resolve(ctx, p, id, models.StateApproved, comment)
}

// Reject records a rejection. The asset, if it exists, gets an annotation
// but its fields never change.
func (s *Service) Reject(ctx context.Context, p domain.Principal, id domain.ChangeRequestID, comment string) (*Resolution, error) {
	return s.resolve(ctx, p, id, models.StateRejected, comment)
}

func (s *Service) resolve(ctx context.Context, p domain.Principal, id domain.ChangeRequestID, decision models.State, comment string) (_ *Resolution, err error) {
	ctx, span := s.startSpan(ctx, "Resolve",
		attribute.String("change_request.id", id.String()),
		attribute.String("decision", string(decision)),
	)
	defer func() { endSpan(span, err) }()

	if err := policy.Require(p, policy.ActionResolve); err != nil {
		if dErrors.HasCode(err, dErrors.CodeForbidden) {
			e := s.event(ctx, audit.EventResolutionDenied, p.ID, nil)
			e.RequestID = id
			e.Decision = string(decision)
			s.emitSecurity(ctx, e)
		}
		return nil, err
	}
	comment, err = validateComment(comment)
	if err != nil {
		return nil, err
	}

	var out *Resolution
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := s.requests.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return translate(err, "change request not found")
		}
		if err := req.CanResolve(); err != nil {
			return alreadyResolved(err)
		}

		now := requestcontext.Now(txCtx)
		res := &Resolution{}
		var seq int64
		if decision == models.StateApproved {
			asset, err := s.applyApproved(txCtx, p, req, comment)
			if err != nil {
				return err
			}
			res.Asset = asset
			// The asset row is locked by applyApproved, so approvals on one
			// asset draw sequence numbers in the order they commit.
			seq, err = s.codes.NextApprovalSequence(txCtx)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate approval sequence")
			}
		}

		req.ApplyResolution(decision, p.ID, comment, now)
		req.Review.Sequence = seq
		if err := s.requests.Resolve(txCtx, req); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return alreadyResolved(err)
			}
			return translate(err, "change request not found")
		}

		if decision == models.StateRejected {
			if err := s.annotateIfExists(txCtx, req.AssetID, models.Annotation{
				Action:    models.AnnotationRejected,
				Text:      fmt.Sprintf("%s rejected: %s", req.Code, comment),
				ActorID:   p.ID,
				RequestID: req.ID,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}

		action := audit.EventChangeRequestRejected
		if decision == models.StateApproved {
			action = audit.EventChangeRequestApproved
		}
		e := s.event(txCtx, action, p.ID, req)
		e.Decision = string(decision)
		if err := s.emitCompliance(txCtx, e); err != nil {
			return err
		}

		res.Request = req
		out = res
		return nil
	})
	if err != nil {
		s.recordConflict(ctx, p, id, err)
		return nil, err
	}

	if decision == models.StateApproved {
		s.invalidateVersion(ctx, out.Request.AssetID)
	}
	if s.metrics != nil {
		s.metrics.ObserveResolved(string(out.Request.Kind), string(decision), out.Request.ResolvedAt().Sub(out.Request.CreatedAt))
	}
	return out, nil
}

// applyApproved writes the request's diff to the asset, runs the party index
// side effects and appends the approval annotation.
func (s *Service) applyApproved(ctx context.Context, p domain.Principal, req *models.ChangeRequest, comment string) (*models.Asset, error) {
	current, err := s.assets.FindByIDForUpdate(ctx, req.AssetID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		if req.Kind != models.KindCreation {
			return nil, dErrors.New(dErrors.CodeNotFound, "asset not found")
		}
		current = nil
	case err != nil:
		return nil, translate(err, "asset not found")
	}

	now := requestcontext.Now(ctx)
	seed := apply.Seed{AssetID: req.AssetID, Now: now}
	if req.Kind == models.KindCreation && current == nil {
		code, err := s.codes.NextAssetCode(ctx)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate asset code")
		}
		seed.AssetCode = code
	}

	result, err := apply.Apply(current, req.Diffs, req.Kind, seed)
	if err != nil {
		return nil, err
	}
	next := result.Asset

	if req.Kind == models.KindCreation {
		if err := s.assets.Create(ctx, next); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return nil, dErrors.New(dErrors.CodeConflict, "asset id or code already in use")
			}
			return nil, translate(err, "asset not found")
		}
	} else if err := s.assets.Save(ctx, next); err != nil {
		return nil, translate(err, "asset not found")
	}

	for _, r := range result.Reassigns {
		if err := s.parties.Move(ctx, r.AssetID, r.From, r.To); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update responsible party index")
		}
		if req.Kind == models.KindCreation {
			continue
		}
		e := s.event(ctx, audit.EventAssetReassigned, p.ID, req)
		e.Detail = fmt.Sprintf("%s -> %s", partyOrNone(r.From), r.To)
		if err := s.emitCompliance(ctx, e); err != nil {
			return nil, err
		}
	}

	note := models.Annotation{
		Action:    annotationFor(req, result),
		Text:      fmt.Sprintf("%s approved: %s", req.Code, comment),
		ActorID:   p.ID,
		RequestID: req.ID,
		CreatedAt: now,
	}
	if err := s.assets.AppendAnnotation(ctx, next.ID, note); err != nil {
		return nil, translate(err, "asset not found")
	}
	next.Annotate(note)

	if req.Kind == models.KindCreation {
		e := s.event(ctx, audit.EventAssetCreated, p.ID, req)
		e.Detail = next.Code
		if err := s.emitCompliance(ctx, e); err != nil {
			return nil, err
		}
	}
	return next, nil
}

// Annotate adds an audit note to a change request. The request's state is
// never changed.
func (s *Service) Annotate(ctx context.Context, p domain.Principal, id domain.ChangeRequestID, comment string) (_ *models.ChangeRequest, err error) {
	ctx, span := s.startSpan(ctx, "Annotate", attribute.String("change_request.id", id.String()))
	defer func() { endSpan(span, err) }()

	if err := policy.Require(p, policy.ActionAnnotate); err != nil {
		return nil, err
	}
	comment, err = validateComment(comment)
	if err != nil {
		return nil, err
	}

	var annotated *models.ChangeRequest
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		req, err := s.requests.Execute(txCtx, id,
			func(r *models.ChangeRequest) error {
				return s.policy.CheckAnnotate(p, r)
			},
			func(r *models.ChangeRequest) {
				r.AddAuditNote(p.ID, comment, now)
			},
		)
		if err != nil {
			return translate(err, "change request not found")
		}
		if err := s.annotateIfExists(txCtx, req.AssetID, models.Annotation{
			Action:    models.AnnotationAudited,
			Text:      fmt.Sprintf("%s audited: %s", req.Code, comment),
			ActorID:   p.ID,
			RequestID: req.ID,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := s.emitCompliance(txCtx, s.event(txCtx, audit.EventChangeRequestAnnotated, p.ID, req)); err != nil {
			return err
		}
		annotated = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return annotated, nil
}

// annotateIfExists looks the asset up first: a failed insert would abort a
// Postgres transaction.
func (s *Service) annotateIfExists(ctx context.Context, id domain.AssetID, note models.Annotation) error {
	_, err := s.assets.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return translate(err, "asset not found")
	}
	return translate(s.assets.AppendAnnotation(ctx, id, note), "asset not found")
}

func (s *Service) recordConflict(ctx context.Context, p domain.Principal, id domain.ChangeRequestID, err error) {
	if !dErrors.HasCode(err, dErrors.CodeConflict) {
		return
	}
	reason := "stale"
	if de, ok := dErrors.As(err); ok && de.Field == "" {
		reason = "state"
	}
	if s.metrics != nil {
		s.metrics.IncConflict(reason)
	}
	e := s.event(ctx, audit.EventResolutionConflict, p.ID, nil)
	e.RequestID = id
	e.Detail = err.Error()
	s.emitSecurity(ctx, e)
}

func (s *Service) invalidateVersion(ctx context.Context, id domain.AssetID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "version cache invalidation failed", "asset_id", id, "error", err)
	}
}

func alreadyResolved(err error) error {
	return dErrors.Wrap(err, dErrors.CodeConflict, "change request already resolved")
}

func validateComment(comment string) (string, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return "", dErrors.NewField(dErrors.CodeValidation, "comment", "comment is required")
	}
	if utf8.RuneCountInString(comment) > models.MaxCommentLength {
		return "", dErrors.NewField(dErrors.CodeValidation, "comment", "comment must be at most 2000 characters")
	}
	return comment, nil
}

func annotationFor(req *models.ChangeRequest, result *apply.Result) models.AnnotationAction {
	switch {
	case req.Kind == models.KindCreation:
		return models.AnnotationCreated
	case len(result.Reassigns) > 0 && len(req.Diffs) == len(result.Reassigns):
		return models.AnnotationReassigned
	default:
		return models.AnnotationModified
	}
}

func partyOrNone(id domain.PartyID) string {
	if id.IsNil() {
		return models.NoPriorValue
	}
	return id.String()
}
