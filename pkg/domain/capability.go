package domain

import (
	"slices"
	"strings"

	dErrors "custodian/pkg/domain-errors"
)

// Capability is a named permission carried by a principal.
// Invariant: the value must be one of the supported capabilities.
//
// Usage: construct via ParseCapability at trust boundaries; direct casting
// bypasses validation.
type Capability string

const (
	// CapabilitySecurityReview may approve or reject change requests and sees
	// the unfiltered history.
	CapabilitySecurityReview Capability = "security_review"
	// CapabilityAudit may annotate change requests and sees the unfiltered history.
	CapabilityAudit Capability = "audit"
	// CapabilitySuperuser implies every other capability.
	CapabilitySuperuser Capability = "superuser"
	// CapabilityStandard may submit change requests and read approved history.
	CapabilityStandard Capability = "standard"
)

var validCapabilities = map[Capability]bool{
	CapabilitySecurityReview: true,
	CapabilityAudit:          true,
	CapabilitySuperuser:      true,
	CapabilityStandard:       true,
}

// ParseCapability constructs a Capability from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseCapability(s string) (Capability, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "capability cannot be empty")
	}
	c := Capability(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid capability")
	}
	return c, nil
}

func (c Capability) IsValid() bool  { return validCapabilities[c] }
func (c Capability) String() string { return string(c) }

// CapabilitySet is the explicit set of capabilities held by a principal.
type CapabilitySet []Capability

// ParseCapabilitySet parses every entry, dropping duplicates.
func ParseCapabilitySet(values []string) (CapabilitySet, error) {
	set := make(CapabilitySet, 0, len(values))
	for _, v := range values {
		c, err := ParseCapability(v)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(set, c) {
			set = append(set, c)
		}
	}
	return set, nil
}

// Has reports whether the set grants c. Superuser grants everything.
func (s CapabilitySet) Has(c Capability) bool {
	return slices.Contains(s, c) || slices.Contains(s, CapabilitySuperuser)
}

// HasAny reports whether the set grants at least one of cs.
func (s CapabilitySet) HasAny(cs ...Capability) bool {
	for _, c := range cs {
		if s.Has(c) {
			return true
		}
	}
	return false
}

// Strings renders the set for logs and tokens.
func (s CapabilitySet) Strings() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = string(c)
	}
	return out
}
