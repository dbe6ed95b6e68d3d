// Package apply projects approved diff entries onto an asset.
package apply

import (
	"fmt"
	"time"

	"custodian/internal/ledger/models"
	"custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
)

// Reassign is the side effect of a responsible-party entry: the asset must
// move between entries of the party back-reference index in the same
// transaction that writes the field.
type Reassign struct {
	AssetID domain.AssetID
	From    domain.PartyID
	To      domain.PartyID
}

// Result is the projected asset plus the side effects the caller must run
// atomically with persisting it.
type Result struct {
	Asset     *models.Asset
	Reassigns []Reassign
}

// Apply returns asset with entries applied. It never mutates its input.
//
// For creation, asset is nil and a new asset is materialized with id and
// code; its status is forced to active regardless of any status entry.
// For other kinds every entry's captured previous value must still match the
// asset, otherwise the request is stale and CodeConflict is returned.
func Apply(asset *models.Asset, entries []models.DiffEntry, kind models.OperationKind, seed Seed) (*Result, error) {
	var next *models.Asset
	switch kind {
	case models.KindCreation:
		if asset != nil {
			return nil, dErrors.New(dErrors.CodeConflict, "asset already exists")
		}
		next = &models.Asset{
			ID:        seed.AssetID,
			Code:      seed.AssetCode,
			CreatedAt: seed.Now,
		}
	case models.KindModification, models.KindReassignment:
		if asset == nil {
			return nil, dErrors.New(dErrors.CodeNotFound, "asset not found")
		}
		if err := CheckStale(asset, entries); err != nil {
			return nil, err
		}
		next = asset.Clone()
	default:
		return nil, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("unknown operation kind %q", kind))
	}

	res := &Result{Asset: next}
	for _, e := range entries {
		if e.IsReassignment() {
			to, err := domain.ParsePartyID(e.New)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "stored responsible party is malformed")
			}
			res.Reassigns = append(res.Reassigns, Reassign{AssetID: next.ID, From: next.ResponsibleParty, To: to})
		}
		if err := set(next, e.Field, e.New); err != nil {
			return nil, err
		}
	}
	if kind == models.KindCreation {
		next.Status = models.StatusActive
	}
	next.UpdatedAt = seed.Now
	return res, nil
}

// Seed carries the values apply cannot derive from the entries.
type Seed struct {
	AssetID   domain.AssetID
	AssetCode string
	Now       time.Time
}

// CheckStale verifies each entry's previous value against the asset.
func CheckStale(asset *models.Asset, entries []models.DiffEntry) error {
	for _, e := range entries {
		if !e.HasPrior() {
			return dErrors.New(dErrors.CodeInternal, "modification entry without previous value")
		}
		if current := asset.FieldValue(e.Field); current != *e.Previous {
			return dErrors.NewField(dErrors.CodeConflict, string(e.Field),
				fmt.Sprintf("stale previous value for %s: asset changed since the request was submitted", e.Field))
		}
	}
	return nil
}

func set(a *models.Asset, f models.Field, v string) error {
	switch f {
	case models.FieldName:
		a.Name = v
	case models.FieldCategory:
		c, err := models.ParseCategory(v)
		if err != nil {
			return err
		}
		a.Category = c
	case models.FieldDescription:
		a.Description = v
	case models.FieldLocation:
		a.Location = v
	case models.FieldStatus:
		st, err := models.ParseStatus(v)
		if err != nil {
			return err
		}
		a.Status = st
	case models.FieldResponsibleParty:
		p, err := domain.ParsePartyID(v)
		if err != nil {
			return err
		}
		a.ResponsibleParty = p
	default:
		return dErrors.NewField(dErrors.CodeValidation, string(f), "field is not mutable")
	}
	return nil
}
