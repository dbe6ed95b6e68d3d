package handler

import (
	"time"

	"custodian/internal/ledger/history"
	"custodian/internal/ledger/models"
	"custodian/internal/ledger/service"
	"custodian/pkg/domain"
)

type DiffEntryResponse struct {
	Field string `json:"field"`
	// Previous is null for creation entries.
	Previous *string `json:"previous"`
	New      string  `json:"new"`
}

type ReviewResponse struct {
	ReviewerID string    `json:"reviewer_id"`
	ReviewedAt time.Time `json:"reviewed_at"`
	Decision   string    `json:"decision"`
	Comment    string    `json:"comment"`
	Sequence   int64     `json:"apply_sequence,omitempty"`
}

type AuditNoteResponse struct {
	AuditorID string    `json:"auditor_id"`
	CreatedAt time.Time `json:"created_at"`
	Comment   string    `json:"comment"`
}

type ChangeRequestResponse struct {
	ID            string              `json:"id"`
	Code          string              `json:"code"`
	State         string              `json:"state"`
	Kind          string              `json:"kind"`
	AssetID       string              `json:"asset_id"`
	ProposerID    string              `json:"proposer_id"`
	Justification string              `json:"justification"`
	CreatedAt     time.Time           `json:"created_at"`
	Diffs         []DiffEntryResponse `json:"diffs"`
	Review        *ReviewResponse     `json:"review,omitempty"`
	AuditNotes    []AuditNoteResponse `json:"audit_notes"`
}

type ChangeRequestListResponse struct {
	ChangeRequests []ChangeRequestResponse `json:"change_requests"`
}

type AnnotationResponse struct {
	Action    string    `json:"action"`
	Text      string    `json:"text"`
	ActorID   string    `json:"actor_id"`
	RequestID string    `json:"change_request_id"`
	CreatedAt time.Time `json:"created_at"`
}

type AssetResponse struct {
	ID               string               `json:"id"`
	Code             string               `json:"code"`
	Category         string               `json:"category"`
	Name             string               `json:"name"`
	Description      string               `json:"description"`
	Location         string               `json:"location"`
	Status           string               `json:"status"`
	ResponsibleParty string               `json:"responsible_party,omitempty"`
	Version          string               `json:"version,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
	Annotations      []AnnotationResponse `json:"annotations"`
}

type AssetListResponse struct {
	Assets []AssetResponse `json:"assets"`
}

type ResolutionResponse struct {
	ChangeRequest ChangeRequestResponse `json:"change_request"`
	Asset         *AssetResponse        `json:"asset,omitempty"`
}

type TimelineEntryResponse struct {
	ChangeRequestID string              `json:"change_request_id"`
	Code            string              `json:"code"`
	Kind            string              `json:"kind"`
	State           string              `json:"state"`
	ProposerID      string              `json:"proposer_id"`
	Justification   string              `json:"justification"`
	CreatedAt       time.Time           `json:"created_at"`
	Diffs           []DiffEntryResponse `json:"diffs"`
	Review          *ReviewResponse     `json:"review,omitempty"`
	AuditNotes      []AuditNoteResponse `json:"audit_notes"`
	Version         string              `json:"version,omitempty"`
}

type HistoryResponse struct {
	AssetID string                  `json:"asset_id"`
	Entries []TimelineEntryResponse `json:"entries"`
}

type VersionResponse struct {
	AssetID string    `json:"asset_id"`
	AsOf    time.Time `json:"as_of"`
	Version string    `json:"version"`
}

func toDiffs(entries []models.DiffEntry) []DiffEntryResponse {
	out := make([]DiffEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = DiffEntryResponse{Field: string(e.Field), Previous: e.Previous, New: e.New}
	}
	return out
}

func toReview(r *models.Review) *ReviewResponse {
	if r == nil {
		return nil
	}
	return &ReviewResponse{
		ReviewerID: r.ReviewerID.String(),
		ReviewedAt: r.ReviewedAt,
		Decision:   string(r.Decision),
		Comment:    r.Comment,
		Sequence:   r.Sequence,
	}
}

func toNotes(notes []models.AuditNote) []AuditNoteResponse {
	out := make([]AuditNoteResponse, len(notes))
	for i, n := range notes {
		out[i] = AuditNoteResponse{AuditorID: n.AuditorID.String(), CreatedAt: n.CreatedAt, Comment: n.Comment}
	}
	return out
}

func toChangeRequestResponse(r *models.ChangeRequest) ChangeRequestResponse {
	return ChangeRequestResponse{
		ID:            r.ID.String(),
		Code:          r.Code,
		State:         string(r.State),
		Kind:          string(r.Kind),
		AssetID:       r.AssetID.String(),
		ProposerID:    r.ProposerID.String(),
		Justification: r.Justification,
		CreatedAt:     r.CreatedAt,
		Diffs:         toDiffs(r.Diffs),
		Review:        toReview(r.Review),
		AuditNotes:    toNotes(r.AuditNotes),
	}
}

func toAssetResponse(a *models.Asset, version string) AssetResponse {
	resp := AssetResponse{
		ID:          a.ID.String(),
		Code:        a.Code,
		Category:    string(a.Category),
		Name:        a.Name,
		Description: a.Description,
		Location:    a.Location,
		Status:      string(a.Status),
		Version:     version,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
		Annotations: make([]AnnotationResponse, len(a.Annotations)),
	}
	if !a.ResponsibleParty.IsNil() {
		resp.ResponsibleParty = a.ResponsibleParty.String()
	}
	for i, n := range a.Annotations {
		resp.Annotations[i] = AnnotationResponse{
			Action:    string(n.Action),
			Text:      n.Text,
			ActorID:   n.ActorID.String(),
			RequestID: n.RequestID.String(),
			CreatedAt: n.CreatedAt,
		}
	}
	return resp
}

func toResolutionResponse(res *service.Resolution) ResolutionResponse {
	out := ResolutionResponse{ChangeRequest: toChangeRequestResponse(res.Request)}
	if res.Asset != nil {
		a := toAssetResponse(res.Asset, "")
		out.Asset = &a
	}
	return out
}

func toHistoryResponse(id domain.AssetID, entries []history.Entry) HistoryResponse {
	out := HistoryResponse{AssetID: id.String(), Entries: make([]TimelineEntryResponse, len(entries))}
	for i, e := range entries {
		t := TimelineEntryResponse{
			ChangeRequestID: e.RequestID.String(),
			Code:            e.Code,
			Kind:            string(e.Kind),
			State:           string(e.State),
			ProposerID:      e.ProposerID.String(),
			Justification:   e.Justification,
			CreatedAt:       e.CreatedAt,
			Diffs:           toDiffs(e.Diffs),
			Review:          toReview(e.Review),
			AuditNotes:      toNotes(e.AuditNotes),
		}
		if e.Version != nil {
			t.Version = e.Version.String()
		}
		out.Entries[i] = t
	}
	return out
}
