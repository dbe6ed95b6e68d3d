// Package ops provides a best-effort publisher for operational audit events.
// Events may be sampled down and are dropped while the store is unhealthy.
package ops

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	audit "custodian/pkg/platform/audit"
)

// Publisher tracks operational events without ever failing the caller.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics

	rate    float64
	breaker *breaker
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// WithSampleRate keeps roughly rate of all events. Values are clamped to [0, 1].
func WithSampleRate(rate float64) Option {
	return func(p *Publisher) { p.rate = min(max(rate, 0), 1) }
}

// WithBreaker opens after threshold consecutive failures and stays open for cooldown.
func WithBreaker(threshold int, cooldown time.Duration) Option {
	return func(p *Publisher) { p.breaker = newBreaker(threshold, cooldown) }
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:   store,
		rate:    1,
		breaker: newBreaker(5, time.Minute),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Track records an event if it is sampled and the store is healthy.
func (p *Publisher) Track(ctx context.Context, event audit.Event) {
	if p.rate < 1 && rand.Float64() >= p.rate { //nolint:gosec // sampling doesn't need crypto rand
		p.metrics.incSampled()
		return
	}
	if !p.breaker.allow(time.Now()) {
		p.metrics.incDropped()
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Category = audit.CategoryOperations

	if err := p.store.Append(ctx, event); err != nil {
		opened := p.breaker.failure(time.Now())
		p.metrics.incFailures()
		p.metrics.setBreakerOpen(opened)
		if p.logger != nil {
			p.logger.WarnContext(ctx, "ops audit dropped", "action", event.Action, "error", err)
		}
		return
	}
	p.breaker.success()
	p.metrics.setBreakerOpen(false)
	p.metrics.incTracked()
}

type breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	openUntil time.Time
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &breaker{threshold: threshold, cooldown: cooldown}
}

// allow reports whether the breaker is closed, or half-open after the cooldown.
func (b *breaker) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openUntil.IsZero() {
		return true
	}
	if now.After(b.openUntil) {
		b.openUntil = time.Time{}
		b.failures = 0
		return true
	}
	return false
}

func (b *breaker) failure(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.openUntil = now.Add(b.cooldown)
	}
	return !b.openUntil.IsZero()
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openUntil = time.Time{}
}
