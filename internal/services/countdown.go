package services

import (
	"context"
	"time"
)

// Countdown observes elapsed time of a session. It has no access to session
// state; a "time is up" submission must go through SessionController.Submit.
type Countdown struct {
	startedAt time.Time
	limit     time.Duration
	now       func() time.Time
}

func NewCountdown(startedAt time.Time, limit time.Duration) *Countdown {
	return &Countdown{
		startedAt: startedAt,
		limit:     limit,
		now:       time.Now,
	}
}

// Remaining never goes below zero.
func (c *Countdown) Remaining() time.Duration {
	left := c.limit - c.now().Sub(c.startedAt)
	if left < 0 {
		return 0
	}
	return left
}

func (c *Countdown) Expired() bool {
	return c.Remaining() == 0
}

// Watch calls onTick every tick with the remaining time and onExpire once
// when the limit passes. It returns when the countdown expires or ctx ends.
func (c *Countdown) Watch(ctx context.Context, tick time.Duration, onTick func(time.Duration), onExpire func()) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		remaining := c.Remaining()
		if onTick != nil {
			onTick(remaining)
		}
		if remaining == 0 {
			if onExpire != nil {
				onExpire()
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
