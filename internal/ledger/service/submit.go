package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"custodian/internal/ledger/diff"
	"custodian/internal/ledger/models"
	"custodian/internal/ledger/policy"
	"custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/audit"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/requestcontext"
)

// SubmitCommand proposes a change to an asset. AssetID is empty for creation.
type SubmitCommand struct {
	Kind          models.OperationKind
	AssetID       domain.AssetID
	Justification string
	Fields        models.ProposedFields
}

// Submit computes the diff against the asset's current state and records a
// pending change request. The captured previous values are what approval
// later checks for staleness.
func (s *Service) Submit(ctx context.Context, p domain.Principal, cmd SubmitCommand) (_ *models.ChangeRequest, err error) {
	ctx, span := s.startSpan(ctx, "Submit", attribute.String("kind", string(cmd.Kind)))
	defer func() { endSpan(span, err) }()

	if err := policy.Require(p, policy.ActionSubmit); err != nil {
		return nil, err
	}
	if err := models.ValidateJustification(strings.TrimSpace(cmd.Justification)); err != nil {
		return nil, err
	}

	var created *models.ChangeRequest
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		assetID, entries, err := s.proposedDiff(txCtx, cmd)
		if err != nil {
			return err
		}
		code, err := s.codes.NextRequestCode(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate change request code")
		}
		req, err := models.NewChangeRequest(
			domain.NewChangeRequestID(),
			code,
			cmd.Kind,
			assetID,
			p.ID,
			cmd.Justification,
			entries,
			requestcontext.Now(txCtx),
		)
		if err != nil {
			return err
		}
		if err := s.requests.Create(txCtx, req); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "change request code already in use")
			}
			return translate(err, "change request not found")
		}
		if err := s.emitCompliance(txCtx, s.event(txCtx, audit.EventChangeRequestSubmitted, p.ID, req)); err != nil {
			return err
		}
		created = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("change_request.code", created.Code))
	if s.metrics != nil {
		s.metrics.IncSubmitted(string(created.Kind))
	}
	return created, nil
}

func (s *Service) proposedDiff(ctx context.Context, cmd SubmitCommand) (domain.AssetID, []models.DiffEntry, error) {
	switch cmd.Kind {
	case models.KindCreation:
		if !cmd.AssetID.IsNil() {
			return domain.AssetID{}, nil, dErrors.NewField(dErrors.CodeValidation, "asset_id", "asset_id must be empty for creation")
		}
		if err := diff.RequireCreationFields(cmd.Fields); err != nil {
			return domain.AssetID{}, nil, err
		}
		entries, err := diff.Compute(nil, cmd.Fields)
		if err != nil {
			return domain.AssetID{}, nil, err
		}
		return domain.NewAssetID(), entries, nil

	case models.KindModification, models.KindReassignment:
		if cmd.AssetID.IsNil() {
			return domain.AssetID{}, nil, dErrors.NewField(dErrors.CodeValidation, "asset_id", "asset_id is required")
		}
		fields := cmd.Fields
		if cmd.Kind == models.KindReassignment {
			if err := onlyResponsibleParty(fields); err != nil {
				return domain.AssetID{}, nil, err
			}
		}
		current, err := s.assets.FindByID(ctx, cmd.AssetID)
		if err != nil {
			return domain.AssetID{}, nil, translate(err, "asset not found")
		}
		entries, err := diff.Compute(current, fields)
		if err != nil {
			return domain.AssetID{}, nil, err
		}
		return current.ID, entries, nil
	}
	return domain.AssetID{}, nil, dErrors.NewField(dErrors.CodeValidation, "kind", "unknown operation kind")
}

func onlyResponsibleParty(fields models.ProposedFields) error {
	for _, f := range models.MutableFields {
		if f == models.FieldResponsibleParty {
			continue
		}
		if _, ok := fields.Get(f); ok {
			return dErrors.NewField(dErrors.CodeValidation, string(f), "reassignment may only change responsible_party")
		}
	}
	if _, ok := fields.Get(models.FieldResponsibleParty); !ok {
		return dErrors.NewField(dErrors.CodeValidation, string(models.FieldResponsibleParty), "responsible_party is required for reassignment")
	}
	return nil
}
