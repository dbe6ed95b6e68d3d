package ops

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "custodian/pkg/platform/audit"
	"custodian/pkg/platform/audit/store/memory"
)

type countingStore struct {
	calls int
	err   error
}

func (s *countingStore) Append(context.Context, audit.Event) error {
	s.calls++
	return s.err
}

func TestTrack(t *testing.T) {
	ctx := context.Background()

	t.Run("records with operations category", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		New(store).Track(ctx, audit.Event{Action: audit.EventHistoryViewed.String()})

		events, err := store.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, audit.CategoryOperations, events[0].Category)
	})

	t.Run("zero sample rate drops everything", func(t *testing.T) {
		store := &countingStore{}
		p := New(store, WithSampleRate(0))
		for range 10 {
			p.Track(ctx, audit.Event{Action: "x"})
		}
		assert.Zero(t, store.calls)
	})

	t.Run("breaker opens after threshold", func(t *testing.T) {
		store := &countingStore{err: errors.New("down")}
		p := New(store, WithBreaker(2, time.Hour))
		for range 5 {
			p.Track(ctx, audit.Event{Action: "x"})
		}
		assert.Equal(t, 2, store.calls)
	})
}

func TestBreakerHalfOpen(t *testing.T) {
	b := newBreaker(1, time.Second)
	now := time.Now()
	require.True(t, b.failure(now))
	assert.False(t, b.allow(now.Add(500*time.Millisecond)))
	assert.True(t, b.allow(now.Add(2*time.Second)))
}
