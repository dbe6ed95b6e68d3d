package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "custodian/pkg/platform/audit"
	"custodian/pkg/platform/audit/store/memory"
)

func TestPublisher(t *testing.T) {
	ctx := context.Background()

	t.Run("flush drains buffer", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		p := New(store)
		p.Emit(ctx, audit.Event{Action: audit.EventResolutionConflict.String()})
		p.Emit(ctx, audit.Event{Action: audit.EventResolutionDenied.String()})
		require.Equal(t, 2, p.Pending())

		p.Flush(ctx)
		events, err := store.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, audit.CategorySecurity, events[0].Category)
		assert.Zero(t, p.Pending())
	})

	t.Run("full buffer evicts oldest", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		p := New(store, WithCapacity(2))
		for _, action := range []string{"a", "b", "c"} {
			p.Emit(ctx, audit.Event{Action: action})
		}
		assert.Equal(t, int64(1), p.Dropped())

		p.Flush(ctx)
		events, err := store.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "b", events[0].Action)
		assert.Equal(t, "c", events[1].Action)
	})
}
