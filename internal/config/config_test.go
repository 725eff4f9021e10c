package config

import (
	"testing"
	"time"

	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, JobPollConfig{Interval: 2 * time.Second, MaxAttempts: 60}, cfg.JobPolling[models.JobRegenerate])
	assert.Equal(t, JobPollConfig{Interval: time.Second, MaxAttempts: 600}, cfg.JobPolling[models.JobGenerate])
	assert.Equal(t, 10*time.Minute, cfg.JobPolling[models.JobGenerate].Deadline())
	assert.Len(t, cfg.SubjectAPIs, 3)
	assert.Equal(t, 5*time.Minute, cfg.HandoffTTL)
	assert.Zero(t, cfg.SessionTimeLimit)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("REGENERATE_POLL_INTERVAL", "500ms")
	t.Setenv("REGENERATE_MAX_ATTEMPTS", "3")
	t.Setenv("MATH_API_URL", "http://math.internal")
	t.Setenv("EVENTS_ENABLED", "false")
	t.Setenv("SESSION_TIME_LIMIT", "40m")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, JobPollConfig{Interval: 500 * time.Millisecond, MaxAttempts: 3}, cfg.JobPolling[models.JobRegenerate])
	assert.Equal(t, "http://math.internal", cfg.SubjectAPIs[models.SubjectMath])
	assert.False(t, cfg.Events.Enabled)
	assert.Equal(t, 40*time.Minute, cfg.SessionTimeLimit)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("OCR_MAX_ATTEMPTS", "-4")
	t.Setenv("HTTP_TIMEOUT", "soon")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.JobPolling[models.JobOCR].MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
}

func TestEventConfig_GetKafkaBrokers(t *testing.T) {
	c := EventConfig{KafkaBrokers: "a:9092, b:9092,,"}
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.GetKafkaBrokers())
}
