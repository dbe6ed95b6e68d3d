package models

import (
	"slices"
	"time"

	"custodian/pkg/domain"
)

// AnnotationAction classifies an entry in an asset's annotation log.
type AnnotationAction string

const (
	AnnotationCreated    AnnotationAction = "created"
	AnnotationModified   AnnotationAction = "modified"
	AnnotationReassigned AnnotationAction = "reassigned"
	AnnotationRejected   AnnotationAction = "rejected"
	AnnotationAudited    AnnotationAction = "audited"
)

// Annotation is an append-only log entry on an asset.
type Annotation struct {
	Action    AnnotationAction
	Text      string
	ActorID   domain.PrincipalID
	RequestID domain.ChangeRequestID
	CreatedAt time.Time
}

// Asset is the canonical record of a change-controlled item. It only exists
// once its creation request has been approved, and only the apply engine
// mutates it.
type Asset struct {
	ID               domain.AssetID
	Code             string
	Category         Category
	Name             string
	Description      string
	Location         string
	Status           Status
	ResponsibleParty domain.PartyID
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Annotations      []Annotation
}

// FieldValue returns the normalized string value of a mutable field.
func (a *Asset) FieldValue(f Field) string {
	switch f {
	case FieldName:
		return a.Name
	case FieldCategory:
		return string(a.Category)
	case FieldDescription:
		return a.Description
	case FieldLocation:
		return a.Location
	case FieldStatus:
		return string(a.Status)
	case FieldResponsibleParty:
		if a.ResponsibleParty.IsNil() {
			return ""
		}
		return a.ResponsibleParty.String()
	}
	return ""
}

// Clone returns a deep copy so callers can project changes without aliasing.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	c := *a
	c.Annotations = slices.Clone(a.Annotations)
	return &c
}

// Annotate appends an entry to the annotation log.
func (a *Asset) Annotate(n Annotation) {
	a.Annotations = append(a.Annotations, n)
}
