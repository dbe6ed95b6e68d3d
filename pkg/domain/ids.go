package domain

import (
	"github.com/google/uuid"

	dErrors "custodian/pkg/domain-errors"
)

// Typed identifiers. Distinct named types keep an AssetID from being passed
// where a PartyID is expected; the compiler rejects the mix-up.
type (
	AssetID         uuid.UUID
	ChangeRequestID uuid.UUID
	PartyID         uuid.UUID
	PrincipalID     uuid.UUID
)

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}

// ParseAssetID parses an asset identifier from external input.
func ParseAssetID(s string) (AssetID, error) {
	u, err := parseUUID(s, "asset id")
	return AssetID(u), err
}

// ParseChangeRequestID parses a change request identifier from external input.
func ParseChangeRequestID(s string) (ChangeRequestID, error) {
	u, err := parseUUID(s, "change request id")
	return ChangeRequestID(u), err
}

// ParsePartyID parses a responsible-party identifier from external input.
func ParsePartyID(s string) (PartyID, error) {
	u, err := parseUUID(s, "party id")
	return PartyID(u), err
}

// ParsePrincipalID parses a principal identifier from external input.
func ParsePrincipalID(s string) (PrincipalID, error) {
	u, err := parseUUID(s, "principal id")
	return PrincipalID(u), err
}

func NewAssetID() AssetID                 { return AssetID(uuid.New()) }
func NewChangeRequestID() ChangeRequestID { return ChangeRequestID(uuid.New()) }

func (id AssetID) String() string         { return uuid.UUID(id).String() }
func (id ChangeRequestID) String() string { return uuid.UUID(id).String() }
func (id PartyID) String() string         { return uuid.UUID(id).String() }
func (id PrincipalID) String() string     { return uuid.UUID(id).String() }

func (id AssetID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id ChangeRequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id PartyID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id PrincipalID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
