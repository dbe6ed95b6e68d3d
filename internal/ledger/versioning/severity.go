package versioning

import "custodian/internal/ledger/models"

// Severity is the semantic impact of an approved change.
type Severity int

const (
	SeverityPatch Severity = iota
	SeverityMinor
	SeverityMajor
)

func (s Severity) String() string {
	switch s {
	case SeverityMajor:
		return "major"
	case SeverityMinor:
		return "minor"
	default:
		return "patch"
	}
}

var fieldSeverity = map[models.Field]Severity{
	models.FieldName:             SeverityMajor,
	models.FieldCategory:         SeverityMajor,
	models.FieldStatus:           SeverityMinor,
	models.FieldResponsibleParty: SeverityMinor,
	models.FieldDescription:      SeverityMinor,
	models.FieldLocation:         SeverityPatch,
}

// Classify returns the highest severity among the touched fields. Fields
// outside the mapping count as patch.
func Classify(fields []models.Field) Severity {
	sev := SeverityPatch
	for _, f := range fields {
		if s := fieldSeverity[f]; s > sev {
			sev = s
		}
	}
	return sev
}
