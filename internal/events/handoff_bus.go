package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// HandoffNotice tells a subscriber that a handoff for StudentID was stored.
// The receiver still has to claim it from the handoff store.
type HandoffNotice struct {
	StudentID string
	Link      models.DeepLink
}

// HandoffBus pushes handoff notices between the page that stores a
// pending assignment and the page that opens it.
type HandoffBus struct {
	pubSub *gochannel.GoChannel
	topic  string
	logger *slog.Logger
}

func NewHandoffBus(topic string, logger *slog.Logger) *HandoffBus {
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 16,
	}, watermill.NewSlogLogger(logger))

	return &HandoffBus{
		pubSub: pubSub,
		topic:  topic,
		logger: logger,
	}
}

// Publish announces a stored handoff. Without subscribers the notice is dropped.
func (b *HandoffBus) Publish(ctx context.Context, studentID string, link models.DeepLink) error {
	payload, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to marshal handoff: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("student_id", studentID)
	msg.SetContext(ctx)

	if err := b.pubSub.Publish(b.topic, msg); err != nil {
		return fmt.Errorf("failed to publish handoff: %w", err)
	}

	b.logger.Debug("Published handoff notice",
		"student_id", studentID,
		"assignment_id", link.AssignmentID)
	return nil
}

// Subscribe delivers notices addressed to studentID until ctx is done.
func (b *HandoffBus) Subscribe(ctx context.Context, studentID string) (<-chan HandoffNotice, error) {
	messages, err := b.pubSub.Subscribe(ctx, b.topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to handoffs: %w", err)
	}

	out := make(chan HandoffNotice)
	go func() {
		defer close(out)
		for msg := range messages {
			notice, ok := b.decode(msg, studentID)
			msg.Ack()
			if !ok {
				continue
			}
			select {
			case out <- notice:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (b *HandoffBus) decode(msg *message.Message, studentID string) (HandoffNotice, bool) {
	if msg.Metadata.Get("student_id") != studentID {
		return HandoffNotice{}, false
	}

	var link models.DeepLink
	if err := json.Unmarshal(msg.Payload, &link); err != nil {
		b.logger.Warn("Dropping malformed handoff notice", "message_uuid", msg.UUID, "error", err)
		return HandoffNotice{}, false
	}
	return HandoffNotice{StudentID: studentID, Link: link}, true
}

func (b *HandoffBus) Close() error {
	return b.pubSub.Close()
}
