package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/worksheet-session/internal/events"
)

const eventPublishTimeout = 5 * time.Second

// EventNotifier publishes lifecycle events without letting publisher
// failures reach the caller.
type EventNotifier struct {
	publisher events.EventPublisher
	logger    *slog.Logger
}

func NewEventNotifier(publisher events.EventPublisher, logger *slog.Logger) *EventNotifier {
	return &EventNotifier{
		publisher: publisher,
		logger:    logger,
	}
}

// Notify publishes event detached from ctx cancellation. A nil event or
// publisher is ignored.
func (n *EventNotifier) Notify(ctx context.Context, event *events.Event) {
	if n == nil || n.publisher == nil || event == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()

	if err := n.publisher.PublishEvent(pubCtx, event); err != nil {
		n.logger.Warn("Failed to publish event",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err)
	}
}
