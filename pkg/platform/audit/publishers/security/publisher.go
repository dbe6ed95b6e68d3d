// Package security buffers security audit events and flushes them in the
// background. When the buffer is full the oldest events are dropped.
package security

import (
	"context"
	"log/slog"
	"sync"
	"time"

	audit "custodian/pkg/platform/audit"
)

const (
	defaultCapacity  = 10000
	defaultBatchSize = 100
	defaultInterval  = time.Second
)

// Publisher enqueues security events without blocking callers.
type Publisher struct {
	store    audit.Store
	logger   *slog.Logger
	buf      *ringBuffer
	batch    int
	interval time.Duration
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithCapacity(n int) Option {
	return func(p *Publisher) { p.buf = newRingBuffer(n) }
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:    store,
		buf:      newRingBuffer(defaultCapacity),
		batch:    defaultBatchSize,
		interval: defaultInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit buffers an event for the next flush.
func (p *Publisher) Emit(_ context.Context, event audit.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Category = audit.CategorySecurity
	p.buf.enqueue(event)
}

// Run flushes buffered events until ctx is done, then drains what remains.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.Flush(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}

// Flush writes every buffered event to the store. Failed events are not retried.
func (p *Publisher) Flush(ctx context.Context) {
	for {
		events := p.buf.dequeue(p.batch)
		if len(events) == 0 {
			return
		}
		for _, e := range events {
			if err := p.store.Append(ctx, e); err != nil && p.logger != nil {
				p.logger.WarnContext(ctx, "security audit dropped", "action", e.Action, "error", err)
			}
		}
	}
}

// Pending returns the number of buffered events.
func (p *Publisher) Pending() int { return p.buf.len() }

// Dropped returns how many events were evicted from a full buffer.
func (p *Publisher) Dropped() int64 { return p.buf.droppedCount() }

type ringBuffer struct {
	mu       sync.Mutex
	events   []audit.Event
	head     int
	tail     int
	count    int
	capacity int
	dropped  int64
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &ringBuffer{events: make([]audit.Event, capacity), capacity: capacity}
}

func (b *ringBuffer) enqueue(event audit.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == b.capacity {
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.dropped++
	}
	b.events[b.head] = event
	b.head = (b.head + 1) % b.capacity
	b.count++
}

func (b *ringBuffer) dequeue(n int) []audit.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	n = min(n, b.count)
	if n == 0 {
		return nil
	}
	out := make([]audit.Event, n)
	for i := range n {
		out[i] = b.events[b.tail]
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count -= n
	return out
}

func (b *ringBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *ringBuffer) droppedCount() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
