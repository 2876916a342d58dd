package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5, cfg.WorkerCount)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 10*time.Minute, cfg.CallTimeLimit)
	assert.Equal(t, 15*time.Minute, cfg.Wave2Delay)
	assert.Equal(t, 30*time.Minute, cfg.Wave3Delay)
	assert.Equal(t, 24*time.Hour, cfg.SMSReplyWindow)
	assert.Equal(t, "Australia/Sydney", cfg.DefaultTimezone)
	assert.Equal(t, "ap-southeast-2", cfg.AWSRegion)
	assert.Equal(t, "auto", cfg.SMSProvider)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("WORKER_COUNT", "3")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	t.Setenv("WAVE2_DELAY", "5m")
	t.Setenv("SMS_PROVIDER", "Telnyx")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 3, cfg.WorkerCount)
	assert.True(t, cfg.UseMemoryQueue)
	assert.Equal(t, 5*time.Minute, cfg.Wave2Delay)
	assert.Equal(t, "telnyx", cfg.SMSProvider)
}

func TestCORSOriginsList(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://admin.example.com, https://ops.example.com ,")
	cfg := Load()
	assert.Equal(t, []string{"https://admin.example.com", "https://ops.example.com"}, cfg.CORSAllowedOrigins)
}

func TestGetEnvAsDurationInvalid(t *testing.T) {
	t.Setenv("WAVE3_DELAY", "not-a-duration")
	cfg := Load()
	assert.Equal(t, 30*time.Minute, cfg.Wave3Delay)
}
