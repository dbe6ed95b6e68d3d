// Package diff computes the field-level difference between an asset's current
// state and a proposed state.
package diff

import (
	"errors"
	"unicode/utf8"

	"custodian/internal/ledger/models"
	"custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
)

const maxNameLength = 200

// Compute returns the ordered diff entries turning current into proposed.
//
// A nil current means creation: every supplied non-empty field yields an
// entry with no prior value. Otherwise only supplied fields whose trimmed
// value differs from the snapshot are emitted, each capturing the current
// value as its previous value. Entries follow models.MutableFields order.
//
// Errors: CodeValidation for malformed enum or identifier values, or an
// attempt to clear a field; CodeNoChanges when nothing would change.
func Compute(current *models.Asset, proposed models.ProposedFields) ([]models.DiffEntry, error) {
	var entries []models.DiffEntry
	var errs []error

	for _, field := range models.MutableFields {
		value, supplied := proposed.Get(field)
		if !supplied {
			continue
		}
		if value == "" {
			if current != nil && current.FieldValue(field) != "" {
				errs = append(errs, dErrors.NewField(dErrors.CodeValidation, string(field), string(field)+" cannot be cleared"))
			}
			continue
		}
		value, err := normalize(field, value)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if current == nil {
			entries = append(entries, models.DiffEntry{Field: field, New: value})
			continue
		}
		prev := current.FieldValue(field)
		if prev == value {
			continue
		}
		entries = append(entries, models.DiffEntry{Field: field, Previous: &prev, New: value})
	}

	if len(errs) > 0 {
		// First error carries the field for the response; the rest are joined
		// so logs show every offending field.
		first, _ := dErrors.As(errs[0])
		if len(errs) == 1 {
			return nil, first
		}
		return nil, &dErrors.Error{
			Code:    dErrors.CodeValidation,
			Message: first.Message,
			Field:   first.Field,
			Err:     errors.Join(errs...),
		}
	}
	if len(entries) == 0 {
		return nil, dErrors.New(dErrors.CodeNoChanges, "proposed state does not differ from the current asset")
	}
	return entries, nil
}

// RequireCreationFields checks the fields every new asset must carry. A
// responsible party may be assigned later through a reassignment.
func RequireCreationFields(proposed models.ProposedFields) error {
	for _, f := range []models.Field{models.FieldName, models.FieldCategory} {
		if v, ok := proposed.Get(f); !ok || v == "" {
			return dErrors.NewField(dErrors.CodeValidation, string(f), string(f)+" is required for creation")
		}
	}
	return nil
}

// normalize validates value and returns its canonical form, so that an
// identifier differing only in letter case is not reported as a change.
func normalize(field models.Field, value string) (string, error) {
	switch field {
	case models.FieldCategory:
		c, err := models.ParseCategory(value)
		return string(c), err
	case models.FieldStatus:
		st, err := models.ParseStatus(value)
		return string(st), err
	case models.FieldResponsibleParty:
		id, err := domain.ParsePartyID(value)
		if err != nil {
			return "", dErrors.NewField(dErrors.CodeValidation, string(field), "responsible_party must be a valid identifier")
		}
		return id.String(), nil
	case models.FieldName:
		if utf8.RuneCountInString(value) > maxNameLength {
			return "", dErrors.NewField(dErrors.CodeValidation, string(field), "name must be at most 200 characters")
		}
	}
	return value, nil
}
