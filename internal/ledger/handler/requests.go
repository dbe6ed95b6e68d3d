package handler

import (
	"strings"

	"custodian/internal/ledger/models"
	"custodian/internal/ledger/service"
	"custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
)

// SubmitRequest is the HTTP request body for POST /change-requests.
type SubmitRequest struct {
	Kind          string        `json:"kind"`
	AssetID       string        `json:"asset_id,omitempty"`
	Justification string        `json:"justification"`
	Fields        FieldsRequest `json:"fields"`

	parsedKind    models.OperationKind
	parsedAssetID domain.AssetID
}

// FieldsRequest carries the proposed values. Omitted fields are left unchanged.
type FieldsRequest struct {
	Name             *string `json:"name,omitempty"`
	Category         *string `json:"category,omitempty"`
	Description      *string `json:"description,omitempty"`
	Location         *string `json:"location,omitempty"`
	Status           *string `json:"status,omitempty"`
	ResponsibleParty *string `json:"responsible_party,omitempty"`
}

// Validate implements httputil.Validatable.
func (r *SubmitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Justification) > 4*models.MaxJustificationLength {
		return dErrors.NewField(dErrors.CodeValidation, "justification", "justification is too long")
	}

	kind, err := models.ParseOperationKind(strings.TrimSpace(r.Kind))
	if err != nil {
		return err
	}
	r.parsedKind = kind

	r.AssetID = strings.TrimSpace(r.AssetID)
	if r.AssetID != "" {
		id, err := domain.ParseAssetID(r.AssetID)
		if err != nil {
			return dErrors.NewField(dErrors.CodeValidation, "asset_id", "asset_id must be a UUID")
		}
		r.parsedAssetID = id
	}

	r.Justification = strings.TrimSpace(r.Justification)
	return models.ValidateJustification(r.Justification)
}

// Command converts the validated request into a service command.
func (r *SubmitRequest) Command() service.SubmitCommand {
	return service.SubmitCommand{
		Kind:          r.parsedKind,
		AssetID:       r.parsedAssetID,
		Justification: r.Justification,
		Fields: models.ProposedFields{
			Name:             r.Fields.Name,
			Category:         r.Fields.Category,
			Description:      r.Fields.Description,
			Location:         r.Fields.Location,
			Status:           r.Fields.Status,
			ResponsibleParty: r.Fields.ResponsibleParty,
		},
	}
}

// CommentRequest is the body for approve, reject and annotate.
type CommentRequest struct {
	Comment string `json:"comment"`
}

func (r *CommentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Comment = strings.TrimSpace(r.Comment)
	if r.Comment == "" {
		return dErrors.NewField(dErrors.CodeValidation, "comment", "comment is required")
	}
	return nil
}
