package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custodian/internal/ledger/history"
	"custodian/internal/ledger/models"
	"custodian/internal/ledger/service"
	"custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/httputil"
	"custodian/pkg/requestcontext"
)

// Service defines the ledger operations exposed over HTTP.
type Service interface {
	Submit(ctx context.Context, p domain.Principal, cmd service.SubmitCommand) (*models.ChangeRequest, error)
	Approve(ctx context.Context, p domain.Principal, id domain.ChangeRequestID, comment string) (*service.Resolution, error)
	Reject(ctx context.Context, p domain.Principal, id domain.ChangeRequestID, comment string) (*service.Resolution, error)
	Annotate(ctx context.Context, p domain.Principal, id domain.ChangeRequestID, comment string) (*models.ChangeRequest, error)
	GetRequest(ctx context.Context, p domain.Principal, id domain.ChangeRequestID) (*models.ChangeRequest, error)
	ListPending(ctx context.Context, p domain.Principal) ([]*models.ChangeRequest, error)
	GetAsset(ctx context.Context, p domain.Principal, id domain.AssetID) (*service.AssetView, error)
	History(ctx context.Context, p domain.Principal, id domain.AssetID) ([]history.Entry, error)
	VersionAsOf(ctx context.Context, p domain.Principal, id domain.AssetID, t time.Time) (string, error)
	ListByParty(ctx context.Context, p domain.Principal, party domain.PartyID) ([]*models.Asset, error)
}

// Handler wires ledger endpoints to the ledger service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts ledger endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/change-requests", func(r chi.Router) {
		r.Post("/", h.HandleSubmit)
		r.Get("/", h.HandleListPending)
		r.Get("/{id}", h.HandleGetRequest)
		r.Post("/{id}/approve", h.HandleApprove)
		r.Post("/{id}/reject", h.HandleReject)
		r.Post("/{id}/annotations", h.HandleAnnotate)
	})
	r.Route("/assets/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGetAsset)
		r.Get("/history", h.HandleHistory)
		r.Get("/version", h.HandleVersion)
	})
	r.Get("/parties/{id}/assets", h.HandleListByParty)
}

// HandleSubmit handles POST /change-requests.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	principal := requestcontext.Principal(ctx)

	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	created, err := h.service.Submit(ctx, principal, req.Command())
	if err != nil {
		h.fail(ctx, w, "change request submission failed", err, "kind", req.Kind)
		return
	}

	h.logger.InfoContext(ctx, "change request submitted",
		"request_id", requestID,
		"change_request", created.Code,
		"kind", created.Kind,
	)
	httputil.WriteJSON(w, http.StatusCreated, toChangeRequestResponse(created))
}

// HandleListPending handles GET /change-requests?state=pending.
func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if state := r.URL.Query().Get("state"); state != "" && state != string(models.StatePending) {
		httputil.WriteError(w, dErrors.NewField(dErrors.CodeValidation, "state", "only the pending review queue can be listed"))
		return
	}

	reqs, err := h.service.ListPending(ctx, requestcontext.Principal(ctx))
	if err != nil {
		h.fail(ctx, w, "review queue failed", err)
		return
	}
	out := make([]ChangeRequestResponse, len(reqs))
	for i, req := range reqs {
		out[i] = toChangeRequestResponse(req)
	}
	httputil.WriteJSON(w, http.StatusOK, ChangeRequestListResponse{ChangeRequests: out})
}

// HandleGetRequest handles GET /change-requests/{id}.
func (h *Handler) HandleGetRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseChangeRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := h.service.GetRequest(ctx, requestcontext.Principal(ctx), id)
	if err != nil {
		h.fail(ctx, w, "change request lookup failed", err, "change_request_id", id)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toChangeRequestResponse(req))
}

// HandleApprove handles POST /change-requests/{id}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleResolve(w, r, h.service.Approve, models.StateApproved)
}

// HandleReject handles POST /change-requests/{id}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.handleResolve(w, r, h.service.Reject, models.StateRejected)
}

type resolveFunc func(ctx context.Context, p domain.Principal, id domain.ChangeRequestID, comment string) (*service.Resolution, error)

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request, resolve resolveFunc, decision models.State) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	id, err := domain.ParseChangeRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CommentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := resolve(ctx, requestcontext.Principal(ctx), id, req.Comment)
	if err != nil {
		h.fail(ctx, w, "change request resolution failed", err,
			"change_request_id", id,
			"decision", decision,
		)
		return
	}

	h.logger.InfoContext(ctx, "change request resolved",
		"request_id", requestID,
		"change_request", res.Request.Code,
		"decision", decision,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, toResolutionResponse(res))
}

// HandleAnnotate handles POST /change-requests/{id}/annotations.
func (h *Handler) HandleAnnotate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := domain.ParseChangeRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CommentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	annotated, err := h.service.Annotate(ctx, requestcontext.Principal(ctx), id, req.Comment)
	if err != nil {
		h.fail(ctx, w, "change request annotation failed", err, "change_request_id", id)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toChangeRequestResponse(annotated))
}

// HandleGetAsset handles GET /assets/{id}.
func (h *Handler) HandleGetAsset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseAssetID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	view, err := h.service.GetAsset(ctx, requestcontext.Principal(ctx), id)
	if err != nil {
		h.fail(ctx, w, "asset lookup failed", err, "asset_id", id)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAssetResponse(view.Asset, view.Version))
}

// HandleHistory handles GET /assets/{id}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseAssetID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.service.History(ctx, requestcontext.Principal(ctx), id)
	if err != nil {
		h.fail(ctx, w, "asset history failed", err, "asset_id", id)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toHistoryResponse(id, entries))
}

// HandleVersion handles GET /assets/{id}/version?as_of=RFC3339.
func (h *Handler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseAssetID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	asOf := requestcontext.Now(ctx)
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		asOf, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, dErrors.NewField(dErrors.CodeValidation, "as_of", "as_of must be an RFC 3339 timestamp"))
			return
		}
	}
	v, err := h.service.VersionAsOf(ctx, requestcontext.Principal(ctx), id, asOf)
	if err != nil {
		h.fail(ctx, w, "version lookup failed", err, "asset_id", id)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VersionResponse{AssetID: id.String(), AsOf: asOf.UTC(), Version: v})
}

// HandleListByParty handles GET /parties/{id}/assets.
func (h *Handler) HandleListByParty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	party, err := domain.ParsePartyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	assets, err := h.service.ListByParty(ctx, requestcontext.Principal(ctx), party)
	if err != nil {
		h.fail(ctx, w, "party asset listing failed", err, "party_id", party)
		return
	}
	out := make([]AssetResponse, len(assets))
	for i, a := range assets {
		out[i] = toAssetResponse(a, "")
	}
	httputil.WriteJSON(w, http.StatusOK, AssetListResponse{Assets: out})
}

// fail logs server-side failures at error level and client errors at debug.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append(attrs, "request_id", requestcontext.RequestID(ctx), "error", err)
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.DebugContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
