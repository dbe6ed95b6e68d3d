package cache

import (
	"context"
	"log/slog"

	"custodian/pkg/domain"
	"custodian/pkg/platform/circuit"
)

// Guarded puts a circuit breaker in front of a VersionCache. While the
// breaker is open, reads report a miss at generation zero without touching
// Redis. Writes and invalidations still go through and let the breaker
// close again; a fill against generation zero is refused once the asset has
// ever been invalidated.
type Guarded struct {
	inner   *VersionCache
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuarded(inner *VersionCache, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	return &Guarded{inner: inner, breaker: breaker, logger: logger}
}

func (g *Guarded) Get(ctx context.Context, id domain.AssetID) (string, int64, bool, error) {
	if g.breaker.IsOpen() {
		return "", 0, false, nil
	}
	v, gen, ok, err := g.inner.Get(ctx, id)
	g.record(ctx, err)
	return v, gen, ok, err
}

func (g *Guarded) Put(ctx context.Context, id domain.AssetID, generation int64, version string) (bool, error) {
	stored, err := g.inner.Put(ctx, id, generation, version)
	g.record(ctx, err)
	return stored, err
}

// Invalidate is never skipped: a stale entry would outlive the outage.
func (g *Guarded) Invalidate(ctx context.Context, id domain.AssetID) error {
	err := g.inner.Invalidate(ctx, id)
	g.record(ctx, err)
	return err
}

func (g *Guarded) record(ctx context.Context, err error) {
	if err == nil {
		if _, change := g.breaker.RecordSuccess(); change.Closed {
			g.logger.InfoContext(ctx, "circuit closed", "breaker", g.breaker.Name())
		}
		return
	}
	if _, change := g.breaker.RecordFailure(); change.Opened {
		g.logger.WarnContext(ctx, "circuit opened", "breaker", g.breaker.Name(), "error", err)
	}
}
