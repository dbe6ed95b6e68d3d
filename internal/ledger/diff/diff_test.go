package diff

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"custodian/internal/ledger/models"
	"custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
)

type DiffSuite struct {
	suite.Suite
	party domain.PartyID
	asset *models.Asset
}

func TestDiffSuite(t *testing.T) {
	suite.Run(t, new(DiffSuite))
}

func (s *DiffSuite) SetupTest() {
	s.party = domain.PartyID(uuid.New())
	s.asset = &models.Asset{
		ID:               domain.NewAssetID(),
		Code:             "AST-0001",
		Name:             "Firewall-01",
		Category:         models.CategoryNetwork,
		Location:         "DC-A",
		Status:           models.StatusActive,
		ResponsibleParty: s.party,
	}
}

func ptr(s string) *string { return &s }

func (s *DiffSuite) TestCreation() {
	s.Run("emits one entry per supplied non-empty field with no prior value", func() {
		entries, err := Compute(nil, models.ProposedFields{
			Location:         ptr("  DC-A "),
			Name:             ptr("Firewall-01"),
			Category:         ptr("network"),
			Description:      ptr("   "),
			ResponsibleParty: ptr(s.party.String()),
		})
		s.Require().NoError(err)
		s.Require().Len(entries, 4)

		s.Equal(models.FieldName, entries[0].Field)
		s.Equal(models.FieldCategory, entries[1].Field)
		s.Equal(models.FieldLocation, entries[2].Field)
		s.Equal(models.FieldResponsibleParty, entries[3].Field)
		s.Equal("DC-A", entries[2].New)
		for _, e := range entries {
			s.False(e.HasPrior())
			s.Equal(models.NoPriorValue, e.PreviousOrSentinel())
		}
	})

	s.Run("nothing supplied is a no-op", func() {
		_, err := Compute(nil, models.ProposedFields{Name: ptr("  ")})
		s.True(dErrors.HasCode(err, dErrors.CodeNoChanges))
	})
}

func (s *DiffSuite) TestModification() {
	s.Run("only changed fields are emitted with captured previous values", func() {
		entries, err := Compute(s.asset, models.ProposedFields{
			Name:     ptr("Firewall-01"),
			Location: ptr("DC-B"),
		})
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(models.FieldLocation, entries[0].Field)
		s.Equal("DC-A", *entries[0].Previous)
		s.Equal("DC-B", entries[0].New)
	})

	s.Run("whitespace-only difference is a no-op", func() {
		_, err := Compute(s.asset, models.ProposedFields{Name: ptr("  Firewall-01\t")})
		s.True(dErrors.HasCode(err, dErrors.CodeNoChanges))
	})

	s.Run("identifier case difference is a no-op", func() {
		_, err := Compute(s.asset, models.ProposedFields{
			ResponsibleParty: ptr(strings.ToUpper(s.party.String())),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNoChanges))
	})

	s.Run("reassignment entry is tagged", func() {
		other := uuid.New().String()
		entries, err := Compute(s.asset, models.ProposedFields{ResponsibleParty: ptr(other)})
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.True(entries[0].IsReassignment())
		s.Equal(s.party.String(), *entries[0].Previous)
	})

	s.Run("clearing a populated field is rejected", func() {
		_, err := Compute(s.asset, models.ProposedFields{Location: ptr("")})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *DiffSuite) TestValidation() {
	s.Run("invalid category names the field", func() {
		_, err := Compute(nil, models.ProposedFields{Name: ptr("x"), Category: ptr("spaceship")})
		s.Require().Error(err)
		de, ok := dErrors.As(err)
		s.Require().True(ok)
		s.Equal(dErrors.CodeValidation, de.Code)
		s.Equal("category", de.Field)
	})

	s.Run("invalid status and party are both reported", func() {
		_, err := Compute(s.asset, models.ProposedFields{Status: ptr("gone"), ResponsibleParty: ptr("nobody")})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "responsible_party")
	})
}

func (s *DiffSuite) TestDeterminism() {
	proposed := models.ProposedFields{
		Status:      ptr("maintenance"),
		Description: ptr("edge"),
		Category:    ptr("infrastructure"),
	}
	first, err := Compute(s.asset, proposed)
	s.Require().NoError(err)
	for range 10 {
		again, err := Compute(s.asset, proposed)
		s.Require().NoError(err)
		s.Equal(first, again)
	}
	s.Equal([]models.Field{models.FieldCategory, models.FieldDescription, models.FieldStatus},
		[]models.Field{first[0].Field, first[1].Field, first[2].Field})
}

func (s *DiffSuite) TestRequireCreationFields() {
	s.NoError(RequireCreationFields(models.ProposedFields{Name: ptr("Firewall-01"), Category: ptr("network")}))

	err := RequireCreationFields(models.ProposedFields{Name: ptr("Firewall-01"), Category: ptr("  ")})
	s.Require().Error(err)
	de, _ := dErrors.As(err)
	s.Equal("category", de.Field)
}
