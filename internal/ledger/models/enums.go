package models

import (
	"strings"

	dErrors "custodian/pkg/domain-errors"
)

// Category is the closed set of asset categories.
type Category string

const (
	CategorySystem         Category = "system"
	CategoryDataStore      Category = "data_store"
	CategoryInfrastructure Category = "infrastructure"
	CategoryNetwork        Category = "network"
	CategoryApplication    Category = "application"
	CategoryEndpoint       Category = "endpoint"
)

var validCategories = map[Category]bool{
	CategorySystem:         true,
	CategoryDataStore:      true,
	CategoryInfrastructure: true,
	CategoryNetwork:        true,
	CategoryApplication:    true,
	CategoryEndpoint:       true,
}

// ParseCategory validates a category from external input.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.TrimSpace(s))
	if !c.IsValid() {
		return "", dErrors.NewField(dErrors.CodeValidation, string(FieldCategory), "invalid category")
	}
	return c, nil
}

func (c Category) IsValid() bool  { return validCategories[c] }
func (c Category) String() string { return string(c) }

// Status is the asset lifecycle status.
type Status string

const (
	StatusProposed    Status = "proposed"
	StatusActive      Status = "active"
	StatusMaintenance Status = "maintenance"
	StatusDeprecated  Status = "deprecated"
	StatusRetired     Status = "retired"
)

var validStatuses = map[Status]bool{
	StatusProposed:    true,
	StatusActive:      true,
	StatusMaintenance: true,
	StatusDeprecated:  true,
	StatusRetired:     true,
}

// ParseStatus validates a lifecycle status from external input.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.TrimSpace(s))
	if !st.IsValid() {
		return "", dErrors.NewField(dErrors.CodeValidation, string(FieldStatus), "invalid status")
	}
	return st, nil
}

func (s Status) IsValid() bool  { return validStatuses[s] }
func (s Status) String() string { return string(s) }

// OperationKind says what a change request does to its asset.
type OperationKind string

const (
	KindCreation     OperationKind = "creation"
	KindModification OperationKind = "modification"
	KindReassignment OperationKind = "reassignment"
)

// ParseOperationKind validates an operation kind from external input.
func ParseOperationKind(s string) (OperationKind, error) {
	k := OperationKind(strings.TrimSpace(s))
	switch k {
	case KindCreation, KindModification, KindReassignment:
		return k, nil
	}
	return "", dErrors.NewField(dErrors.CodeValidation, "kind", "invalid operation kind")
}

func (k OperationKind) String() string { return string(k) }

// State is the change request lifecycle state.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
)

// ParseState validates a state filter from external input.
func ParseState(s string) (State, error) {
	st := State(strings.TrimSpace(s))
	switch st {
	case StatePending, StateApproved, StateRejected:
		return st, nil
	}
	return "", dErrors.NewField(dErrors.CodeValidation, "state", "invalid state")
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateApproved || s == StateRejected
}

func (s State) String() string { return string(s) }
