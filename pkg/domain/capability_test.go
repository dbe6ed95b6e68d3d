package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilitySet(t *testing.T) {
	t.Run("superuser implies every capability", func(t *testing.T) {
		set := CapabilitySet{CapabilitySuperuser}
		assert.True(t, set.Has(CapabilitySecurityReview))
		assert.True(t, set.Has(CapabilityAudit))
	})

	t.Run("standard grants nothing privileged", func(t *testing.T) {
		set := CapabilitySet{CapabilityStandard}
		assert.False(t, set.HasAny(CapabilitySecurityReview, CapabilityAudit))
	})

	t.Run("parse drops duplicates and rejects unknown values", func(t *testing.T) {
		set, err := ParseCapabilitySet([]string{"audit", " audit", "security_review"})
		require.NoError(t, err)
		assert.Equal(t, CapabilitySet{CapabilityAudit, CapabilitySecurityReview}, set)

		_, err = ParseCapabilitySet([]string{"root"})
		require.Error(t, err)
	})
}
