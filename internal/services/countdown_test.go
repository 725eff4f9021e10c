package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCountdown_Remaining(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start.Add(10 * time.Minute)
	c := NewCountdown(start, 30*time.Minute)
	c.now = func() time.Time { return now }

	assert.Equal(t, 20*time.Minute, c.Remaining())
	assert.False(t, c.Expired())

	now = start.Add(45 * time.Minute)
	assert.Equal(t, time.Duration(0), c.Remaining())
	assert.True(t, c.Expired())
}

func TestCountdown_WatchNotifiesExpiryOnce(t *testing.T) {
	c := NewCountdown(time.Now(), 5*time.Millisecond)

	expired := 0
	ticks := 0
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c.Watch(ctx, time.Millisecond, func(time.Duration) { ticks++ }, func() { expired++ })

	assert.Equal(t, 1, expired)
	assert.Positive(t, ticks)
	assert.NoError(t, ctx.Err())
}

func TestCountdown_WatchStopsOnCancel(t *testing.T) {
	c := NewCountdown(time.Now(), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	expired := false
	c.Watch(ctx, time.Millisecond, nil, func() { expired = true })
	assert.False(t, expired)
}
