package domain

// Principal is the acting identity supplied by the identity collaborator on
// every call. The ledger never authenticates; it trusts the capability set.
type Principal struct {
	ID           PrincipalID
	Capabilities CapabilitySet
}

// IsZero reports whether no principal was supplied.
func (p Principal) IsZero() bool {
	return p.ID.IsNil()
}

// Can reports whether the principal holds capability c.
func (p Principal) Can(c Capability) bool {
	return p.Capabilities.Has(c)
}
