package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, int64(30<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, int64(10<<20), cfg.Upload.MaxFileBytes)
	assert.Equal(t, 30*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, 90*time.Second, cfg.Processing.TimeEstimate)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "dev_filerelay", cfg.Axiom.Dataset)
	assert.True(t, cfg.PreviewMode(), "no webhook url implies preview")
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com/x")
	t.Setenv("MAX_FILE_SIZE_MB", "25")
	t.Setenv("WEBHOOK_TIMEOUT", "5s")
	t.Setenv("PROCESSING_TIME_ESTIMATE", "2m")
	t.Setenv("AXIOM_DATASET", "prod")

	cfg := FromEnv()
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "https://hooks.example.com/x", cfg.Webhook.URL)
	assert.Equal(t, int64(25<<20), cfg.Upload.MaxFileBytes)
	assert.Equal(t, 5*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Processing.TimeEstimate)
	assert.Equal(t, "prod_filerelay", cfg.Axiom.Dataset)
	assert.False(t, cfg.PreviewMode())
}

func TestPreviewModeForced(t *testing.T) {
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com/x")
	t.Setenv("PREVIEW_MODE", "true")
	assert.True(t, FromEnv().PreviewMode())
}

func TestFromEnvBadValuesFallBack(t *testing.T) {
	t.Setenv("MAX_BODY_SIZE_MB", "not-a-number")
	t.Setenv("WEBHOOK_TIMEOUT", "soon")
	cfg := FromEnv()
	assert.Equal(t, int64(30<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, 30*time.Second, cfg.Webhook.Timeout)
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "on"} {
		assert.True(t, parseBool(v), v)
	}
	for _, v := range []string{"", "0", "false", "off", "nope"} {
		assert.False(t, parseBool(v), v)
	}
}
