package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
)

var jwtService = NewJWTService("test-signing-key", "test-issuer")

var principal = domain.Principal{
	ID:           domain.PrincipalID(uuid.New()),
	Capabilities: domain.CapabilitySet{domain.CapabilitySecurityReview, domain.CapabilityStandard},
}

func Test_GenerateToken(t *testing.T) {
	token, err := jwtService.GenerateToken(principal, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, principal.ID.String(), claims.Subject)
	assert.Equal(t, []string{"security_review", "standard"}, claims.Capabilities)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.GenerateToken(principal, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	de, ok := dErrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "token has expired", de.Message)
}

func Test_ValidateToken_WrongIssuer(t *testing.T) {
	token, err := NewJWTService("test-signing-key", "someone-else").GenerateToken(principal, time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.ID.String(),
			Issuer:    "test-issuer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.Error(t, err)
}

func Test_Adapter(t *testing.T) {
	adapter := NewJWTServiceAdapter(jwtService)

	t.Run("resolves the principal", func(t *testing.T) {
		token, err := jwtService.GenerateToken(principal, time.Hour)
		require.NoError(t, err)

		got, err := adapter.ValidatePrincipal(token)
		require.NoError(t, err)
		assert.Equal(t, principal, got)
	})

	t.Run("rejects unknown capabilities", func(t *testing.T) {
		token, err := jwtService.GenerateToken(domain.Principal{
			ID:           principal.ID,
			Capabilities: domain.CapabilitySet{"root"},
		}, time.Hour)
		require.NoError(t, err)

		_, err = adapter.ValidatePrincipal(token)
		require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("rejects tokens without capabilities", func(t *testing.T) {
		token, err := jwtService.GenerateToken(domain.Principal{ID: principal.ID}, time.Hour)
		require.NoError(t, err)

		_, err = adapter.ValidatePrincipal(token)
		require.Error(t, err)
	})
}
