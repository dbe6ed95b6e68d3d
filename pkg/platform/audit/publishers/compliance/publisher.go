// Package compliance writes change-control audit events synchronously. With
// the Postgres store the write lands in the outbox inside the caller's
// transaction, so a failed write rolls the ledger change back with it.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	audit "custodian/pkg/platform/audit"
)

var errMalformed = errors.New("malformed compliance event")

// Publisher is fail-closed: callers abort their operation when Emit fails.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit validates and persists event. Every compliance event names its actor
// and the change request or asset it concerns.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if err := validate(event); err != nil {
		return err
	}
	start := time.Now()
	if event.Timestamp.IsZero() {
		event.Timestamp = start
	}
	event.Category = audit.CategoryCompliance

	if err := p.store.Append(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "compliance audit write failed",
				"action", event.Action,
				"actor_id", event.ActorID,
				"change_request_id", event.RequestID,
				"error", err,
			)
		}
		return fmt.Errorf("persist compliance event %s: %w", event.Action, err)
	}
	if p.metrics != nil {
		p.metrics.ObservePersistDuration(time.Since(start).Seconds())
		p.metrics.IncEventsEmitted()
	}
	return nil
}

func validate(e audit.Event) error {
	switch {
	case e.Action == "":
		return fmt.Errorf("%w: action is required", errMalformed)
	case audit.AuditEvent(e.Action).Category() != audit.CategoryCompliance:
		return fmt.Errorf("%w: %s is not a compliance action", errMalformed, e.Action)
	case e.ActorID.IsNil():
		return fmt.Errorf("%w: actor is required", errMalformed)
	case e.AssetID.IsNil() && e.RequestID.IsNil():
		return fmt.Errorf("%w: asset or change request is required", errMalformed)
	}
	return nil
}

// Close is a no-op; writes are synchronous.
func (p *Publisher) Close() error { return nil }
