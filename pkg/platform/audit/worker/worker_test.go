package worker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "custodian/pkg/platform/audit"
	auditpostgres "custodian/pkg/platform/audit/store/postgres"
)

type fakeOutbox struct {
	pending   []auditpostgres.OutboxEntry
	published []uuid.UUID
}

func (o *fakeOutbox) RelayBatch(ctx context.Context, limit int, publish func(context.Context, []auditpostgres.OutboxEntry) error) (int, error) {
	batch := o.pending[:min(limit, len(o.pending))]
	if len(batch) == 0 {
		return 0, nil
	}
	if err := publish(ctx, batch); err != nil {
		return 0, err
	}
	for _, e := range batch {
		o.published = append(o.published, e.ID)
	}
	o.pending = o.pending[len(batch):]
	return len(batch), nil
}

type fakeProducer struct {
	topics []string
	err    error
}

func (p *fakeProducer) Publish(_ context.Context, topic string, _, _ []byte, _ map[string]string) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	return nil
}

var topics = Topics{Compliance: "audit.compliance", Security: "audit.security", Operations: "audit.ops"}

func TestRelayOnce(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	t.Run("routes entries by category", func(t *testing.T) {
		outbox := &fakeOutbox{pending: []auditpostgres.OutboxEntry{
			{ID: uuid.New(), EventType: audit.EventChangeRequestApproved.String()},
			{ID: uuid.New(), EventType: audit.EventResolutionConflict.String()},
			{ID: uuid.New(), EventType: audit.EventHistoryViewed.String()},
		}}
		producer := &fakeProducer{}
		w := NewWorker(outbox, producer, topics, logger)

		n, err := w.RelayOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, []string{"audit.compliance", "audit.security", "audit.ops"}, producer.topics)
		assert.Empty(t, outbox.pending)
	})

	t.Run("failed publish leaves entries pending", func(t *testing.T) {
		outbox := &fakeOutbox{pending: []auditpostgres.OutboxEntry{{ID: uuid.New(), EventType: "x"}}}
		w := NewWorker(outbox, &fakeProducer{err: errors.New("broker down")}, topics, logger)

		_, err := w.RelayOnce(context.Background())
		require.Error(t, err)
		assert.Len(t, outbox.pending, 1)
		assert.Empty(t, outbox.published)
	})
}
