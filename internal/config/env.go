package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Port          string
	MaxBodyBytes  int64
}

// WebhookConfig points at the external processing system.
type WebhookConfig struct {
	URL       string
	ChatURL   string
	CSRFToken string
	Timeout   time.Duration
	// Preview forces placeholder downloads even when URL is set; it is
	// implied whenever URL is empty.
	Preview bool
}

// UploadConfig bounds inbound files.
type UploadConfig struct {
	MaxFileBytes int64
}

// ProcessingConfig drives the status simulator.
type ProcessingConfig struct {
	TimeEstimate time.Duration
}

// StoreConfig selects the file store backend. Empty RedisURL means the
// in-process map.
type StoreConfig struct {
	RedisURL string
}

// ArchiveConfig enables S3 archival of callback-delivered files.
type ArchiveConfig struct {
	S3Bucket string
	Password string
}

// Config is the top-level configuration, read once at process start.
type Config struct {
	Server     ServerConfig
	Webhook    WebhookConfig
	Upload     UploadConfig
	Processing ProcessingConfig
	Store      StoreConfig
	Archive    ArchiveConfig
	Logging    LoggingConfig
	Axiom      AxiomConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Server = ServerConfig{
		Port:         getEnv("PORT", "8080"),
		MaxBodyBytes: int64(parseInt(getEnv("MAX_BODY_SIZE_MB", "30"), 30)) << 20,
	}

	cfg.Webhook = WebhookConfig{
		URL:       getEnv("WEBHOOK_URL", ""),
		ChatURL:   getEnv("CHAT_WEBHOOK_URL", ""),
		CSRFToken: getEnv("CSRF_TOKEN", ""),
		Timeout:   parseDuration(getEnv("WEBHOOK_TIMEOUT", "30s"), 30*time.Second),
		Preview:   parseBool(getEnv("PREVIEW_MODE", "0")),
	}

	cfg.Upload = UploadConfig{
		MaxFileBytes: int64(parseInt(getEnv("MAX_FILE_SIZE_MB", "10"), 10)) << 20,
	}

	cfg.Processing = ProcessingConfig{
		TimeEstimate: parseDuration(getEnv("PROCESSING_TIME_ESTIMATE", "90s"), 90*time.Second),
	}

	cfg.Store = StoreConfig{
		RedisURL: getEnv("REDIS_URL", ""),
	}

	cfg.Archive = ArchiveConfig{
		S3Bucket: getEnv("ARCHIVE_S3_BUCKET", ""),
		Password: getEnv("ARCHIVE_PASSWORD", ""),
	}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/filerelay.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_filerelay",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	return cfg
}

// PreviewMode reports whether downloads must be synthesized locally.
func (c Config) PreviewMode() bool {
	return c.Webhook.Preview || c.Webhook.URL == ""
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
