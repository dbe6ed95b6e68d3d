// Package worker relays audit events from the outbox table to Kafka.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	audit "custodian/pkg/platform/audit"
	auditpostgres "custodian/pkg/platform/audit/store/postgres"
)

// Outbox claims unpublished entries.
type Outbox interface {
	RelayBatch(ctx context.Context, limit int, publish func(context.Context, []auditpostgres.OutboxEntry) error) (int, error)
}

// Producer publishes a record to a topic.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Topics maps event categories to Kafka topics.
type Topics struct {
	Compliance string
	Security   string
	Operations string
}

func (t Topics) For(category audit.EventCategory) string {
	switch category {
	case audit.CategoryCompliance:
		return t.Compliance
	case audit.CategorySecurity:
		return t.Security
	default:
		return t.Operations
	}
}

// Worker polls the outbox and publishes pending entries in order.
type Worker struct {
	outbox   Outbox
	producer Producer
	topics   Topics
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batch = n
		}
	}
}

func NewWorker(outbox Outbox, producer Producer, topics Topics, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		outbox:   outbox,
		producer: producer,
		topics:   topics,
		logger:   logger,
		interval: time.Second,
		batch:    100,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run relays until ctx is cancelled. Publish failures are logged and retried
// on the next tick; entries stay unpublished until Kafka acknowledges them.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for {
				n, err := w.RelayOnce(ctx)
				if err != nil {
					w.logger.WarnContext(ctx, "outbox relay failed", "error", err)
					break
				}
				if n < w.batch {
					break
				}
			}
		}
	}
}

// RelayOnce publishes a single batch and returns how many entries it relayed.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	return w.outbox.RelayBatch(ctx, w.batch, func(ctx context.Context, entries []auditpostgres.OutboxEntry) error {
		for _, e := range entries {
			topic := w.topics.For(audit.AuditEvent(e.EventType).Category())
			headers := map[string]string{"event_type": e.EventType}
			if err := w.producer.Publish(ctx, topic, []byte(e.AggregateID), e.Payload, headers); err != nil {
				return fmt.Errorf("publish outbox entry %s: %w", e.ID, err)
			}
		}
		return nil
	})
}
