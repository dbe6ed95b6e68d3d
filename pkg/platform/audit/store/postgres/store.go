package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"custodian/pkg/domain"
	audit "custodian/pkg/platform/audit"
	txcontext "custodian/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table in the caller's transaction and
// published to Kafka by the outbox worker.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Payload is the JSON structure published to Kafka.
type Payload struct {
	ID            string `json:"id"`
	Category      string `json:"category"`
	Timestamp     string `json:"timestamp"`
	ActorID       string `json:"actor_id"`
	AssetID       string `json:"asset_id,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
	Action        string `json:"action"`
	Decision      string `json:"decision,omitempty"`
	Detail        string `json:"detail,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	ClientIP      string `json:"client_ip,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()
	category := audit.AuditEvent(event.Action).Category()

	payload := Payload{
		ID:            eventID.String(),
		Category:      string(category),
		Timestamp:     event.Timestamp.Format(time.RFC3339Nano),
		ActorID:       event.ActorID.String(),
		Action:        event.Action,
		Decision:      event.Decision,
		Detail:        event.Detail,
		CorrelationID: event.CorrelationID,
		ClientIP:      event.ClientIP,
		UserAgent:     event.UserAgent,
	}
	aggregateType := "audit"
	aggregateID := eventID.String()
	if !event.AssetID.IsNil() {
		payload.AssetID = event.AssetID.String()
		aggregateType = "asset"
		aggregateID = payload.AssetID
	}
	if !event.RequestID.IsNil() {
		payload.RequestID = event.RequestID.String()
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = txcontext.Execer(ctx, s.db).ExecContext(ctx, query,
		eventID,
		aggregateType,
		aggregateID,
		event.Action,
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ComplianceRecord is a compliance event materialized for querying.
type ComplianceRecord struct {
	Timestamp     time.Time
	ActorID       domain.PrincipalID
	AssetID       domain.AssetID
	RequestID     domain.ChangeRequestID
	Action        string
	Decision      string
	Detail        string
	CorrelationID string
}

// AppendCompliance inserts a consumed compliance event into audit_compliance.
// Idempotent via ON CONFLICT DO NOTHING so redelivery is harmless.
func (s *Store) AppendCompliance(ctx context.Context, eventID uuid.UUID, record ComplianceRecord) error {
	query := `
		INSERT INTO audit_compliance (
			id, timestamp, actor_id, asset_id, request_id, action, decision, detail, correlation
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		eventID,
		record.Timestamp,
		uuid.UUID(record.ActorID),
		nullableUUID(uuid.UUID(record.AssetID)),
		nullableUUID(uuid.UUID(record.RequestID)),
		record.Action,
		record.Decision,
		record.Detail,
		record.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("insert compliance event: %w", err)
	}
	return nil
}

// ListByAsset returns the materialized compliance trail of an asset, oldest first.
func (s *Store) ListByAsset(ctx context.Context, assetID domain.AssetID) ([]ComplianceRecord, error) {
	query := `
		SELECT timestamp, actor_id, asset_id, request_id, action, decision, detail, correlation
		FROM audit_compliance
		WHERE asset_id = $1
		ORDER BY timestamp
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(assetID))
	if err != nil {
		return nil, fmt.Errorf("query compliance events: %w", err)
	}
	defer rows.Close()

	var out []ComplianceRecord
	for rows.Next() {
		var (
			r                ComplianceRecord
			actor            uuid.UUID
			asset, requestID uuid.NullUUID
		)
		if err := rows.Scan(&r.Timestamp, &actor, &asset, &requestID, &r.Action, &r.Decision, &r.Detail, &r.CorrelationID); err != nil {
			return nil, fmt.Errorf("scan compliance event: %w", err)
		}
		r.ActorID = domain.PrincipalID(actor)
		r.AssetID = domain.AssetID(asset.UUID)
		r.RequestID = domain.ChangeRequestID(requestID.UUID)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate compliance events: %w", err)
	}
	return out, nil
}

func nullableUUID(u uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: u, Valid: u != uuid.Nil}
}

// OutboxEntry is an unpublished outbox row.
type OutboxEntry struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// RelayBatch claims up to limit unpublished rows, hands them to publish and
// marks them published when it succeeds. Rows are locked with SKIP LOCKED so
// several relays can run concurrently.
func (s *Store) RelayBatch(ctx context.Context, limit int, publish func(context.Context, []OutboxEntry) error) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin relay tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("claim outbox rows: %w", err)
	}
	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox row: %w", err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate outbox rows: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	if err := publish(ctx, entries); err != nil {
		return 0, err
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID.String()
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE outbox SET published_at = $1 WHERE id = ANY($2::uuid[])`,
		time.Now(), pq.Array(ids),
	); err != nil {
		return 0, fmt.Errorf("mark outbox published: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit relay tx: %w", err)
	}
	return len(entries), nil
}
