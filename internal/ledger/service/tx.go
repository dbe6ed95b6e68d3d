package service

import (
	"context"
	"sync"
	"time"

	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/tx"
)

// Snapshotter is implemented by in-memory stores. Snapshot captures the
// current contents and returns a function that restores them.
type Snapshotter interface {
	Snapshot() func()
}

// inMemoryTx serializes ledger writes behind one lock and restores every
// participating store when fn fails. Reads share the lock, so neither a
// partially applied approval nor one about to be rolled back is visible.
type inMemoryTx struct {
	mu      sync.RWMutex
	stores  []Snapshotter
	timeout time.Duration
}

// NewInMemoryTx builds the transaction runner for in-memory stores.
func NewInMemoryTx(stores ...Snapshotter) StoreTx {
	return &inMemoryTx{stores: stores, timeout: tx.DefaultTimeout}
}

func (t *inMemoryTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	ctx, cancel, err := tx.WithDeadline(ctx, t.timeout)
	defer cancel()
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	restores := make([]func(), 0, len(t.stores))
	for _, s := range t.stores {
		restores = append(restores, s.Snapshot())
	}
	if err := fn(ctx); err != nil {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
		return err
	}
	return nil
}

// View holds the read lock while fn runs.
func (t *inMemoryTx) View(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fn(ctx)
}

func snapshotters(candidates ...any) []Snapshotter {
	var out []Snapshotter
	for _, c := range candidates {
		if s, ok := c.(Snapshotter); ok {
			out = append(out, s)
		}
	}
	return out
}
