package models

import "strings"

// NoPriorValue renders the previous value of a creation entry.
const NoPriorValue = "∅"

// DiffEntry is a single field-level change. Previous is nil for creation
// entries; for other kinds it holds the asset value captured when the request
// was submitted and is re-validated on approval.
type DiffEntry struct {
	Field    Field
	Previous *string
	New      string
}

// HasPrior reports whether the entry carries a captured previous value.
func (d DiffEntry) HasPrior() bool { return d.Previous != nil }

// PreviousOrSentinel renders the previous value for display.
func (d DiffEntry) PreviousOrSentinel() string {
	if d.Previous == nil {
		return NoPriorValue
	}
	return *d.Previous
}

// IsReassignment tags the responsible-party variant. Applying it must also
// move the asset between entries of the party back-reference index.
func (d DiffEntry) IsReassignment() bool { return d.Field == FieldResponsibleParty }

// ProposedFields is the desired state submitted by a proposer. Nil means
// "not supplied"; supplied values are trimmed before comparison.
type ProposedFields struct {
	Name             *string
	Category         *string
	Description      *string
	Location         *string
	Status           *string
	ResponsibleParty *string
}

// Get returns the trimmed value for f and whether it was supplied.
func (p ProposedFields) Get(f Field) (string, bool) {
	var v *string
	switch f {
	case FieldName:
		v = p.Name
	case FieldCategory:
		v = p.Category
	case FieldDescription:
		v = p.Description
	case FieldLocation:
		v = p.Location
	case FieldStatus:
		v = p.Status
	case FieldResponsibleParty:
		v = p.ResponsibleParty
	}
	if v == nil {
		return "", false
	}
	return strings.TrimSpace(*v), true
}

// Only returns a copy of p restricted to the given fields.
func (p ProposedFields) Only(fields ...Field) ProposedFields {
	var out ProposedFields
	for _, f := range fields {
		switch f {
		case FieldName:
			out.Name = p.Name
		case FieldCategory:
			out.Category = p.Category
		case FieldDescription:
			out.Description = p.Description
		case FieldLocation:
			out.Location = p.Location
		case FieldStatus:
			out.Status = p.Status
		case FieldResponsibleParty:
			out.ResponsibleParty = p.ResponsibleParty
		}
	}
	return out
}
