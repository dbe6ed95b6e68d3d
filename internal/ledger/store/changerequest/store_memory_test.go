package changerequest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodian/internal/ledger/models"
	"custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
)

type InMemoryChangeRequestStoreSuite struct {
	suite.Suite
	store *InMemoryChangeRequestStore
	ctx   context.Context
	now   time.Time
	asset domain.AssetID
}

func TestInMemoryChangeRequestStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryChangeRequestStoreSuite))
}

func (s *InMemoryChangeRequestStoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
	s.now = time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	s.asset = domain.NewAssetID()
}

func (s *InMemoryChangeRequestStoreSuite) newRequest(code string, offset time.Duration) *models.ChangeRequest {
	prev := "DC-1"
	r, err := models.NewChangeRequest(
		domain.NewChangeRequestID(), code, models.KindModification, s.asset,
		domain.PrincipalID(domain.NewAssetID()), "moving racks between halls",
		[]models.DiffEntry{{Field: models.FieldLocation, Previous: &prev, New: "DC-2"}},
		s.now.Add(offset),
	)
	s.Require().NoError(err)
	return r
}

func (s *InMemoryChangeRequestStoreSuite) TestCreateRejectsDuplicateCode() {
	s.Require().NoError(s.store.Create(s.ctx, s.newRequest("CR-00001", 0)))
	s.ErrorIs(s.store.Create(s.ctx, s.newRequest("CR-00001", time.Second)), sentinel.ErrAlreadyUsed)
}

func (s *InMemoryChangeRequestStoreSuite) TestResolveOnlyOnce() {
	r := s.newRequest("CR-00001", 0)
	s.Require().NoError(s.store.Create(s.ctx, r))

	approved := r.Clone()
	approved.ApplyResolution(models.StateApproved, domain.PrincipalID(domain.NewAssetID()), "ok", s.now)
	s.Require().NoError(s.store.Resolve(s.ctx, approved))

	rejected := r.Clone()
	rejected.ApplyResolution(models.StateRejected, domain.PrincipalID(domain.NewAssetID()), "no", s.now)
	s.ErrorIs(s.store.Resolve(s.ctx, rejected), sentinel.ErrInvalidState)

	got, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StateApproved, got.State)
	s.Equal("ok", got.Review.Comment)
}

func (s *InMemoryChangeRequestStoreSuite) TestResolveRequiresReview() {
	r := s.newRequest("CR-00001", 0)
	s.Require().NoError(s.store.Create(s.ctx, r))
	s.ErrorIs(s.store.Resolve(s.ctx, r), sentinel.ErrInvalidState)
}

func (s *InMemoryChangeRequestStoreSuite) TestExecutePersistsOnlyAuditNotes() {
	r := s.newRequest("CR-00001", 0)
	s.Require().NoError(s.store.Create(s.ctx, r))

	got, err := s.store.Execute(s.ctx, r.ID,
		func(*models.ChangeRequest) error { return nil },
		func(cr *models.ChangeRequest) {
			cr.AddAuditNote(domain.PrincipalID(domain.NewAssetID()), "ticket linked", s.now)
			cr.State = models.StateApproved
		},
	)
	s.Require().NoError(err)
	s.Len(got.AuditNotes, 1)
	s.Equal(models.StatePending, got.State)

	s.Run("validation failure leaves the request untouched", func() {
		boom := errors.New("not allowed")
		_, err := s.store.Execute(s.ctx, r.ID,
			func(*models.ChangeRequest) error { return boom },
			func(cr *models.ChangeRequest) { cr.AddAuditNote(domain.PrincipalID{}, "x", s.now) },
		)
		s.ErrorIs(err, boom)
		stored, err := s.store.FindByID(s.ctx, r.ID)
		s.Require().NoError(err)
		s.Len(stored.AuditNotes, 1)
	})
}

func (s *InMemoryChangeRequestStoreSuite) TestListings() {
	second := s.newRequest("CR-00002", time.Minute)
	first := s.newRequest("CR-00001", 0)
	s.Require().NoError(s.store.Create(s.ctx, second))
	s.Require().NoError(s.store.Create(s.ctx, first))

	byAsset, err := s.store.ListByAsset(s.ctx, s.asset)
	s.Require().NoError(err)
	s.Require().Len(byAsset, 2)
	s.Equal(second.ID, byAsset[0].ID, "insertion order")

	pending, err := s.store.ListByState(s.ctx, models.StatePending)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(first.ID, pending[0].ID, "oldest submission first")

	none, err := s.store.ListByAsset(s.ctx, domain.NewAssetID())
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *InMemoryChangeRequestStoreSuite) TestSnapshotRestore() {
	restore := s.store.Snapshot()
	r := s.newRequest("CR-00001", 0)
	s.Require().NoError(s.store.Create(s.ctx, r))
	restore()

	_, err := s.store.FindByID(s.ctx, r.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.NoError(s.store.Create(s.ctx, r))
}
