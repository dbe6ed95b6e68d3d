package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "custodian/pkg/domain-errors"
)

func TestParseUUID_Invariants(t *testing.T) {
	t.Run("nil uuid rejected", func(t *testing.T) {
		_, err := ParseAssetID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("valid uuid round trips", func(t *testing.T) {
		validUUID := uuid.New()
		parsed, err := ParseAssetID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, validUUID, uuid.UUID(parsed))
		assert.Equal(t, validUUID.String(), parsed.String())
	})
}

// TestTypeDistinction documents that typed IDs sharing a UUID are still
// distinct values of distinct types.
func TestTypeDistinction(t *testing.T) {
	u := uuid.New()
	assetID := AssetID(u)
	partyID := PartyID(u)

	// var a AssetID = partyID  // does not compile
	assert.Equal(t, uuid.UUID(assetID), uuid.UUID(partyID))
	assert.NotEqual(t, any(assetID), any(partyID))
}

func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE assets;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400\u200B-e29b-41d4-a716-446655440000", true},

		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},

		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseChangeRequestID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errAsset := ParseAssetID(validUUID)
		_, errRequest := ParseChangeRequestID(validUUID)
		_, errParty := ParsePartyID(validUUID)
		_, errPrincipal := ParsePrincipalID(validUUID)

		require.NoError(t, errAsset)
		require.NoError(t, errRequest)
		require.NoError(t, errParty)
		require.NoError(t, errPrincipal)
	})

	for _, input := range []string{"", "invalid", uuid.Nil.String()} {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errAsset := ParseAssetID(input)
			_, errRequest := ParseChangeRequestID(input)
			_, errParty := ParsePartyID(input)
			_, errPrincipal := ParsePrincipalID(input)

			require.Error(t, errAsset)
			require.Error(t, errRequest)
			require.Error(t, errParty)
			require.Error(t, errPrincipal)
		})
	}
}
