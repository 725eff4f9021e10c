package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/worksheet-session/internal/cache"
	"github.com/SAP-F-2025/worksheet-session/internal/events"
	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"github.com/SAP-F-2025/worksheet-session/internal/validator"
)

// HandoffStore keeps at most one pending assignment reference per learner.
// An entry is consumed and deleted by its first reader.
type HandoffStore struct {
	cache     cache.CacheService
	bus       *events.HandoffBus
	notifier  *EventNotifier
	validator *validator.Validator
	ttl       time.Duration
	logger    *slog.Logger
}

func NewHandoffStore(cacheService cache.CacheService, bus *events.HandoffBus, notifier *EventNotifier, v *validator.Validator, ttl time.Duration, logger *slog.Logger) *HandoffStore {
	return &HandoffStore{
		cache:     cacheService,
		bus:       bus,
		notifier:  notifier,
		validator: v,
		ttl:       ttl,
		logger:    logger,
	}
}

func handoffKey(studentID string) string {
	return models.HandoffKey + ":" + studentID
}

// Put stores link for studentID, replacing any pending one, and pushes a
// notice to listeners.
func (s *HandoffStore) Put(ctx context.Context, studentID string, link models.DeepLink) error {
	if err := s.validator.ValidateStruct(link); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, handoffKey(studentID), link, s.ttl); err != nil {
		return err
	}

	if s.bus != nil {
		if err := s.bus.Publish(ctx, studentID, link); err != nil {
			s.logger.Warn("Failed to push handoff notice", "student_id", studentID, "error", err)
		}
	}
	s.notifier.Notify(ctx, events.NewHandoffPublishedEvent(studentID, link))
	return nil
}

// Take consumes the pending handoff. It returns nil when there is none.
func (s *HandoffStore) Take(ctx context.Context, studentID string) (*models.DeepLink, error) {
	var link models.DeepLink
	err := s.cache.Take(ctx, handoffKey(studentID), &link)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// Subscribe exposes the push channel of stored handoffs for studentID.
func (s *HandoffStore) Subscribe(ctx context.Context, studentID string) (<-chan events.HandoffNotice, error) {
	if s.bus == nil {
		return nil, errors.New("handoff push channel not configured")
	}
	return s.bus.Subscribe(ctx, studentID)
}
