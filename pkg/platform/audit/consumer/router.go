package consumer

import (
	"context"
	"log/slog"

	"custodian/internal/platform/kafka/consumer"
)

// TopicHandler processes messages of one audit topic.
type TopicHandler interface {
	Handle(ctx context.Context, msg *consumer.Message) error
}

// Router dispatches by topic. Messages on unregistered topics go to the
// fallback, or are logged and acknowledged when there is none.
type Router struct {
	routes   map[string]TopicHandler
	fallback TopicHandler
	logger   *slog.Logger
}

func NewRouter(logger *slog.Logger, fallback TopicHandler) *Router {
	return &Router{routes: map[string]TopicHandler{}, fallback: fallback, logger: logger}
}

// Register must be called before the consumer starts.
func (r *Router) Register(topic string, handler TopicHandler) {
	r.routes[topic] = handler
}

func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	if h, ok := r.routes[msg.Topic]; ok {
		return h.Handle(ctx, msg)
	}
	if r.fallback != nil {
		return r.fallback.Handle(ctx, msg)
	}
	r.logger.WarnContext(ctx, "unrouted audit message",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
	)
	return nil
}
