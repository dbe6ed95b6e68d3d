package consumer

import (
	"context"
	"log/slog"

	"custodian/internal/platform/kafka/consumer"
)

// LogHandler forwards security and operations events to the structured log,
// where the log pipeline ships them to SIEM.
type LogHandler struct {
	logger *slog.Logger
}

func NewLogHandler(logger *slog.Logger) *LogHandler {
	return &LogHandler{logger: logger}
}

func (h *LogHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	payload, ok := decode(ctx, h.logger, msg)
	if !ok {
		return nil
	}
	level := slog.LevelInfo
	if payload.Category == "security" {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, "audit event",
		"category", payload.Category,
		"action", payload.Action,
		"actor_id", payload.ActorID,
		"asset_id", payload.AssetID,
		"request_id", payload.RequestID,
		"detail", payload.Detail,
		"client_ip", payload.ClientIP,
	)
	return nil
}
