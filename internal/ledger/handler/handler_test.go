package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"custodian/internal/ledger/handler/mocks"
	"custodian/internal/ledger/history"
	"custodian/internal/ledger/models"
	"custodian/internal/ledger/service"
	"custodian/internal/ledger/versioning"
	"custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mock_service.go -package=mocks Service
type LedgerHandlerSuite struct {
	suite.Suite
	service   *mocks.MockService
	router    chi.Router
	principal domain.Principal
	now       time.Time
}

func TestLedgerHandlerSuite(t *testing.T) {
	suite.Run(t, new(LedgerHandlerSuite))
}

func (s *LedgerHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
	s.principal = domain.Principal{
		ID:           domain.PrincipalID(uuid.New()),
		Capabilities: domain.CapabilitySet{domain.CapabilitySecurityReview},
	}
	s.now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func (s *LedgerHandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	ctx := requestcontext.WithPrincipal(req.Context(), s.principal)
	ctx = requestcontext.WithTime(ctx, s.now)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req.WithContext(ctx))
	return w
}

func decode[T any](s *LedgerHandlerSuite, w *httptest.ResponseRecorder) T {
	var out T
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *LedgerHandlerSuite) request(kind models.OperationKind) *models.ChangeRequest {
	loc := "DC-1"
	return &models.ChangeRequest{
		ID:            domain.NewChangeRequestID(),
		Code:          "CR-00001",
		CreatedAt:     s.now,
		State:         models.StatePending,
		Kind:          kind,
		AssetID:       domain.NewAssetID(),
		ProposerID:    s.principal.ID,
		Justification: "move to the new data centre",
		Diffs:         []models.DiffEntry{{Field: models.FieldLocation, Previous: &loc, New: "DC-2"}},
	}
}

func (s *LedgerHandlerSuite) TestSubmit() {
	assetID := domain.NewAssetID()
	created := s.request(models.KindModification)
	s.service.EXPECT().Submit(gomock.Any(), s.principal, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.Principal, cmd service.SubmitCommand) (*models.ChangeRequest, error) {
			s.Equal(models.KindModification, cmd.Kind)
			s.Equal(assetID, cmd.AssetID)
			s.Equal("move to the new data centre", cmd.Justification)
			s.Require().NotNil(cmd.Fields.Location)
			s.Equal("DC-2", *cmd.Fields.Location)
			s.Nil(cmd.Fields.Name)
			return created, nil
		})

	w := s.do(http.MethodPost, "/change-requests", map[string]any{
		"kind":          "modification",
		"asset_id":      assetID.String(),
		"justification": "  move to the new data centre ",
		"fields":        map[string]string{"location": "DC-2"},
	})

	s.Equal(http.StatusCreated, w.Code)
	resp := decode[ChangeRequestResponse](s, w)
	s.Equal("CR-00001", resp.Code)
	s.Require().Len(resp.Diffs, 1)
	s.Equal("location", resp.Diffs[0].Field)
	s.Require().NotNil(resp.Diffs[0].Previous)
	s.Equal("DC-1", *resp.Diffs[0].Previous)
}

func (s *LedgerHandlerSuite) TestSubmitValidation() {
	s.Run("unknown kind", func() {
		w := s.do(http.MethodPost, "/change-requests", map[string]any{
			"kind": "deletion", "justification": "remove the old firewall",
		})
		s.Equal(http.StatusBadRequest, w.Code)
	})
	s.Run("short justification", func() {
		w := s.do(http.MethodPost, "/change-requests", map[string]any{
			"kind": "creation", "justification": "new",
		})
		s.Equal(http.StatusBadRequest, w.Code)
		resp := decode[map[string]string](s, w)
		s.Equal("justification", resp["field"])
	})
	s.Run("unknown json field", func() {
		w := s.do(http.MethodPost, "/change-requests", map[string]any{
			"kind": "creation", "justification": "new firewall rollout", "owner": "x",
		})
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *LedgerHandlerSuite) TestSubmitNoChanges() {
	s.service.EXPECT().Submit(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeNoChanges, "proposed state does not differ from the current asset"))

	w := s.do(http.MethodPost, "/change-requests", map[string]any{
		"kind": "modification", "asset_id": uuid.NewString(), "justification": "nothing really changes",
		"fields": map[string]string{"location": "DC-1"},
	})
	s.Equal(http.StatusUnprocessableEntity, w.Code)
	s.Equal("no_changes", decode[map[string]string](s, w)["error"])
}

func (s *LedgerHandlerSuite) TestApprove() {
	req := s.request(models.KindModification)
	req.State = models.StateApproved
	asset := &models.Asset{ID: req.AssetID, Code: "AST-00001", Name: "Firewall-01", Status: models.StatusActive}
	s.service.EXPECT().Approve(gomock.Any(), s.principal, req.ID, "ship it").
		Return(&service.Resolution{Request: req, Asset: asset}, nil)

	w := s.do(http.MethodPost, "/change-requests/"+req.ID.String()+"/approve", map[string]string{"comment": " ship it "})

	s.Equal(http.StatusOK, w.Code)
	resp := decode[ResolutionResponse](s, w)
	s.Equal("approved", resp.ChangeRequest.State)
	s.Require().NotNil(resp.Asset)
	s.Equal("AST-00001", resp.Asset.Code)
}

func (s *LedgerHandlerSuite) TestRejectAlreadyResolved() {
	id := domain.NewChangeRequestID()
	s.service.EXPECT().Reject(gomock.Any(), s.principal, id, "no").
		Return(nil, dErrors.New(dErrors.CodeConflict, "change request already resolved"))

	w := s.do(http.MethodPost, "/change-requests/"+id.String()+"/reject", map[string]string{"comment": "no"})

	s.Equal(http.StatusConflict, w.Code)
	resp := decode[map[string]string](s, w)
	s.Equal("conflict", resp["error"])
	s.Equal("change request already resolved", resp["error_description"])
}

func (s *LedgerHandlerSuite) TestResolveRequiresComment() {
	w := s.do(http.MethodPost, "/change-requests/"+uuid.NewString()+"/approve", map[string]string{"comment": "  "})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *LedgerHandlerSuite) TestInvalidPathID() {
	w := s.do(http.MethodGet, "/assets/not-a-uuid", nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *LedgerHandlerSuite) TestAnnotateForbidden() {
	id := domain.NewChangeRequestID()
	s.service.EXPECT().Annotate(gomock.Any(), s.principal, id, "checked").
		Return(nil, dErrors.New(dErrors.CodeForbidden, "principal lacks capability for annotate"))

	w := s.do(http.MethodPost, "/change-requests/"+id.String()+"/annotations", map[string]string{"comment": "checked"})
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *LedgerHandlerSuite) TestGetAsset() {
	id := domain.NewAssetID()
	s.service.EXPECT().GetAsset(gomock.Any(), s.principal, id).Return(&service.AssetView{
		Asset:   &models.Asset{ID: id, Code: "AST-00007", Category: models.CategoryNetwork, Name: "Firewall-01"},
		Version: versioning.Unversioned,
	}, nil)

	w := s.do(http.MethodGet, "/assets/"+id.String(), nil)

	s.Equal(http.StatusOK, w.Code)
	resp := decode[AssetResponse](s, w)
	s.Equal("unversioned", resp.Version)
	s.Empty(resp.ResponsibleParty)
}

func (s *LedgerHandlerSuite) TestHistory() {
	id := domain.NewAssetID()
	v1 := versioning.Initial
	s.service.EXPECT().History(gomock.Any(), s.principal, id).Return([]history.Entry{
		{
			RequestID: domain.NewChangeRequestID(),
			Code:      "CR-00001",
			Kind:      models.KindCreation,
			State:     models.StateApproved,
			Diffs:     []models.DiffEntry{{Field: models.FieldName, New: "Firewall-01"}},
			Version:   &v1,
		},
	}, nil)

	w := s.do(http.MethodGet, "/assets/"+id.String()+"/history", nil)

	s.Equal(http.StatusOK, w.Code)
	var raw map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &raw))
	entries := raw["entries"].([]any)
	s.Require().Len(entries, 1)
	entry := entries[0].(map[string]any)
	s.Equal("v1.0.0", entry["version"])
	diff := entry["diffs"].([]any)[0].(map[string]any)
	s.Nil(diff["previous"])
}

func (s *LedgerHandlerSuite) TestVersionAsOf() {
	id := domain.NewAssetID()
	asOf := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s.service.EXPECT().VersionAsOf(gomock.Any(), s.principal, id, asOf).Return("v1.2.0", nil)

	w := s.do(http.MethodGet, "/assets/"+id.String()+"/version?as_of="+asOf.Format(time.RFC3339), nil)
	s.Equal(http.StatusOK, w.Code)
	s.Equal("v1.2.0", decode[VersionResponse](s, w).Version)

	s.service.EXPECT().VersionAsOf(gomock.Any(), s.principal, id, s.now).Return("v1.3.0", nil)
	w = s.do(http.MethodGet, "/assets/"+id.String()+"/version", nil)
	s.Equal("v1.3.0", decode[VersionResponse](s, w).Version)

	w = s.do(http.MethodGet, "/assets/"+id.String()+"/version?as_of=yesterday", nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *LedgerHandlerSuite) TestReviewQueue() {
	pending := s.request(models.KindCreation)
	s.service.EXPECT().ListPending(gomock.Any(), s.principal).Return([]*models.ChangeRequest{pending}, nil)

	w := s.do(http.MethodGet, "/change-requests?state=pending", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Len(decode[ChangeRequestListResponse](s, w).ChangeRequests, 1)

	w = s.do(http.MethodGet, "/change-requests?state=approved", nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *LedgerHandlerSuite) TestListByParty() {
	party := domain.PartyID(uuid.New())
	s.service.EXPECT().ListByParty(gomock.Any(), s.principal, party).Return([]*models.Asset{
		{ID: domain.NewAssetID(), Code: "AST-00002", ResponsibleParty: party},
	}, nil)

	w := s.do(http.MethodGet, "/parties/"+party.String()+"/assets", nil)
	s.Equal(http.StatusOK, w.Code)
	resp := decode[AssetListResponse](s, w)
	s.Require().Len(resp.Assets, 1)
	s.Equal(party.String(), resp.Assets[0].ResponsibleParty)
}

func (s *LedgerHandlerSuite) TestInternalErrorsAreOpaque() {
	id := domain.NewChangeRequestID()
	s.service.EXPECT().GetRequest(gomock.Any(), s.principal, id).
		Return(nil, dErrors.Wrap(io.ErrUnexpectedEOF, dErrors.CodeInternal, "ledger storage failure"))

	w := s.do(http.MethodGet, "/change-requests/"+id.String(), nil)
	s.Equal(http.StatusInternalServerError, w.Code)
	s.NotContains(w.Body.String(), "storage")
}
