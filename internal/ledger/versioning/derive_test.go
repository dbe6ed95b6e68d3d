package versioning

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodian/internal/ledger/models"
	"custodian/pkg/domain"
)

type DeriveSuite struct {
	suite.Suite
	base time.Time
	seq  int
}

func TestDeriveSuite(t *testing.T) {
	suite.Run(t, new(DeriveSuite))
}

func (s *DeriveSuite) SetupTest() {
	s.base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.seq = 0
}

func (s *DeriveSuite) approved(kind models.OperationKind, fields ...models.Field) *models.ChangeRequest {
	s.seq++
	at := s.base.Add(time.Duration(s.seq) * time.Hour)
	diffs := make([]models.DiffEntry, len(fields))
	for i, f := range fields {
		diffs[i] = models.DiffEntry{Field: f, New: "x"}
	}
	return &models.ChangeRequest{
		ID:        domain.NewChangeRequestID(),
		Code:      fmt.Sprintf("CR-%04d", s.seq),
		CreatedAt: at,
		State:     models.StateApproved,
		Kind:      kind,
		Diffs:     diffs,
		Review:    &models.Review{Decision: models.StateApproved, ReviewedAt: at, Sequence: int64(s.seq)},
	}
}

func (s *DeriveSuite) TestFirewallScenario() {
	creation := s.approved(models.KindCreation, models.FieldName, models.FieldCategory, models.FieldLocation)
	v, err := Derive([]*models.ChangeRequest{creation})
	s.Require().NoError(err)
	s.Equal("v1.0.0", v.String())

	location := s.approved(models.KindModification, models.FieldLocation)
	v, err = Derive([]*models.ChangeRequest{creation, location})
	s.Require().NoError(err)
	s.Equal("v1.0.1", v.String())

	category := s.approved(models.KindModification, models.FieldCategory)
	v, err = Derive([]*models.ChangeRequest{creation, location, category})
	s.Require().NoError(err)
	s.Equal("v2.0.0", v.String())
}

func (s *DeriveSuite) TestSeverityResets() {
	history := []*models.ChangeRequest{
		s.approved(models.KindCreation, models.FieldName),
		s.approved(models.KindModification, models.FieldLocation),
		s.approved(models.KindModification, models.FieldLocation),
		s.approved(models.KindModification, models.FieldDescription),
		s.approved(models.KindModification, models.FieldLocation),
		s.approved(models.KindReassignment, models.FieldResponsibleParty),
		s.approved(models.KindModification, models.FieldStatus, models.FieldName),
	}
	steps, err := Replay(history)
	s.Require().NoError(err)

	want := []string{"v1.0.0", "v1.0.1", "v1.0.2", "v1.1.0", "v1.1.1", "v1.2.0", "v2.0.0"}
	s.Require().Len(steps, len(want))
	for i, step := range steps {
		s.Equal(want[i], step.Version.String(), "step %d", i)
	}
	s.Equal(SeverityMajor, steps[6].Severity)
}

func (s *DeriveSuite) TestPrefixReconstructibility() {
	history := []*models.ChangeRequest{
		s.approved(models.KindCreation, models.FieldName),
		s.approved(models.KindModification, models.FieldDescription),
		s.approved(models.KindModification, models.FieldLocation),
		s.approved(models.KindModification, models.FieldCategory),
		s.approved(models.KindModification, models.FieldLocation),
	}
	steps, err := Replay(history)
	s.Require().NoError(err)

	for k := 1; k <= len(history); k++ {
		v, err := Derive(history[:k])
		s.Require().NoError(err)
		s.Equal(steps[k-1].Version, v)

		asOf, err := DeriveAsOf(history, history[k-1].SequenceTime())
		s.Require().NoError(err)
		s.Equal(v, asOf)
	}
}

func (s *DeriveSuite) TestUnversioned() {
	s.Run("empty history", func() {
		_, err := Derive(nil)
		s.ErrorIs(err, ErrUnversioned)
	})

	s.Run("no approved creation", func() {
		_, err := Derive([]*models.ChangeRequest{s.approved(models.KindModification, models.FieldLocation)})
		s.ErrorIs(err, ErrUnversioned)
	})

	s.Run("pending creation is ignored", func() {
		pending := s.approved(models.KindCreation, models.FieldName)
		pending.State = models.StatePending
		pending.Review = nil
		_, err := Derive([]*models.ChangeRequest{pending})
		s.ErrorIs(err, ErrUnversioned)
	})

	s.Run("as of before creation", func() {
		creation := s.approved(models.KindCreation, models.FieldName)
		_, err := DeriveAsOf([]*models.ChangeRequest{creation}, creation.SequenceTime().Add(-time.Second))
		s.ErrorIs(err, ErrUnversioned)
	})
}

func (s *DeriveSuite) TestSecondCreationRejected() {
	_, err := Derive([]*models.ChangeRequest{
		s.approved(models.KindCreation, models.FieldName),
		s.approved(models.KindCreation, models.FieldName),
	})
	s.Require().Error(err)
}

func (s *DeriveSuite) TestAsOfStopsAtFirstLaterApproval() {
	creation := s.approved(models.KindCreation, models.FieldName)
	category := s.approved(models.KindModification, models.FieldCategory)
	location := s.approved(models.KindModification, models.FieldLocation)
	// location carries the earlier review time but was applied after category
	location.Review.ReviewedAt = category.Review.ReviewedAt.Add(-30 * time.Minute)
	history := []*models.ChangeRequest{creation, category, location}

	v, err := Derive(history)
	s.Require().NoError(err)
	s.Equal("v2.0.1", v.String())

	asOf, err := DeriveAsOf(history, location.SequenceTime())
	s.Require().NoError(err)
	s.Equal("v1.0.0", asOf.String())

	asOf, err = DeriveAsOf(history, category.SequenceTime())
	s.Require().NoError(err)
	s.Equal("v2.0.1", asOf.String())
}
