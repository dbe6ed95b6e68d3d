package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"custodian/internal/platform/kafka/consumer"
	"custodian/pkg/domain"
	auditpostgres "custodian/pkg/platform/audit/store/postgres"
)

// ComplianceStore materializes compliance events for long-term retention.
type ComplianceStore interface {
	AppendCompliance(ctx context.Context, eventID uuid.UUID, record auditpostgres.ComplianceRecord) error
}

// ComplianceHandler writes compliance events consumed from Kafka into the
// audit_compliance table.
type ComplianceHandler struct {
	store  ComplianceStore
	logger *slog.Logger
}

func NewComplianceHandler(store ComplianceStore, logger *slog.Logger) *ComplianceHandler {
	return &ComplianceHandler{store: store, logger: logger}
}

// Handle stores one compliance event. Malformed messages are logged and
// committed so they cannot block the partition.
func (h *ComplianceHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	payload, ok := decode(ctx, h.logger, msg)
	if !ok {
		return nil
	}
	eventID, err := uuid.Parse(payload.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "CRITICAL: compliance event has invalid id", "id", payload.ID, "error", err)
		return nil
	}
	actor, err := domain.ParsePrincipalID(payload.ActorID)
	if err != nil {
		h.logger.ErrorContext(ctx, "CRITICAL: compliance event missing actor",
			"event_id", eventID,
			"action", payload.Action,
		)
		return nil
	}

	record := auditpostgres.ComplianceRecord{
		Timestamp:     parseTimestamp(payload.Timestamp),
		ActorID:       actor,
		Action:        payload.Action,
		Decision:      payload.Decision,
		Detail:        payload.Detail,
		CorrelationID: payload.CorrelationID,
	}
	if assetID, err := domain.ParseAssetID(payload.AssetID); err == nil {
		record.AssetID = assetID
	}
	if requestID, err := domain.ParseChangeRequestID(payload.RequestID); err == nil {
		record.RequestID = requestID
	}

	if err := h.store.AppendCompliance(ctx, eventID, record); err != nil {
		h.logger.ErrorContext(ctx, "failed to store compliance event",
			"event_id", eventID,
			"action", record.Action,
			"error", err,
		)
		return fmt.Errorf("store compliance event: %w", err)
	}

	h.logger.DebugContext(ctx, "stored compliance event",
		"event_id", eventID,
		"action", record.Action,
		"asset_id", payload.AssetID,
	)
	return nil
}

func decode(ctx context.Context, logger *slog.Logger, msg *consumer.Message) (auditpostgres.Payload, bool) {
	var payload auditpostgres.Payload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		logger.ErrorContext(ctx, "failed to unmarshal audit payload",
			"topic", msg.Topic,
			"key", string(msg.Key),
			"error", err,
		)
		return payload, false
	}
	return payload, true
}

func parseTimestamp(s string) time.Time {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts
	}
	return time.Now()
}
