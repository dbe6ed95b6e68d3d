package models

// Field names a mutable asset attribute.
type Field string

const (
	FieldName             Field = "name"
	FieldCategory         Field = "category"
	FieldDescription      Field = "description"
	FieldLocation         Field = "location"
	FieldStatus           Field = "status"
	FieldResponsibleParty Field = "responsible_party"
)

// MutableFields is the closed mutable-field set in canonical order. Diffs are
// always emitted in this order regardless of submission order.
var MutableFields = []Field{
	FieldName,
	FieldCategory,
	FieldDescription,
	FieldLocation,
	FieldStatus,
	FieldResponsibleParty,
}

// IsValid reports whether f belongs to the mutable-field set.
func (f Field) IsValid() bool {
	for _, m := range MutableFields {
		if m == f {
			return true
		}
	}
	return false
}

func (f Field) String() string { return string(f) }
