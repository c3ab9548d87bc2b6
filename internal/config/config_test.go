package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"
  allowed_origins: ["https://admin.example.com"]

database:
  url: "postgres://localhost/campaigns?sslmode=disable"
  max_open_conns: 10

redis:
  url: "redis://localhost:6379/0"

ses:
  enabled: true
  region: "eu-west-1"
  configuration_set: "campaigns"

tracking:
  base_url: "https://t.example.com"
  sqs_queue_url: "https://sqs.eu-west-1.amazonaws.com/123/events"

dispatch:
  workers: 4
  lock_ttl_seconds: 60
  from_email: "news@example.com"

scheduler:
  tick_seconds: 10
  skip_startup_recovery: true

logging:
  level: debug
  redact_pii: false
  file: /var/log/campaign-engine.log
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"https://admin.example.com"}, cfg.Server.AllowedOrigins)

	assert.Equal(t, "postgres://localhost/campaigns?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5, cfg.Database.MaxIdleConns)

	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)

	assert.True(t, cfg.SES.Enabled)
	assert.Equal(t, "eu-west-1", cfg.SES.Region)
	assert.Equal(t, "campaigns", cfg.SES.ConfigurationSet)

	assert.Equal(t, "https://t.example.com", cfg.Tracking.BaseURL)
	assert.Equal(t, "eu-west-1", cfg.Tracking.SQSRegion)

	assert.Equal(t, 4, cfg.Dispatch.Workers)
	assert.Equal(t, time.Minute, cfg.Dispatch.LockTTL())
	assert.Equal(t, "news@example.com", cfg.Dispatch.FromEmail)

	assert.Equal(t, 10*time.Second, cfg.Scheduler.TickInterval())
	assert.False(t, cfg.Scheduler.Disabled)
	assert.True(t, cfg.Scheduler.SkipStartupRecovery)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Logging.ShouldRedactPII())
	assert.Equal(t, "/var/log/campaign-engine.log", cfg.Logging.File)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 0\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout())
	assert.Equal(t, "", cfg.Database.URL)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime())
	assert.Equal(t, "us-west-2", cfg.SES.Region)
	assert.Equal(t, 30*time.Second, cfg.SES.Timeout())
	assert.Equal(t, 5*time.Second, cfg.Tracking.Timeout())
	assert.Equal(t, 256, cfg.Tracking.MaxInFlight)
	assert.Equal(t, 10, cfg.Dispatch.Workers)
	assert.Equal(t, 2*time.Minute, cfg.Dispatch.LockTTL())
	assert.Equal(t, 30*time.Second, cfg.Scheduler.TickInterval())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.ShouldRedactPII())
}

func TestLoadFromEnv(t *testing.T) {
	configPath := writeConfig(t, `
database:
  url: "postgres://file/db"
tracking:
  base_url: "https://file.example.com"
`)

	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("REDIS_URL", "redis://env:6379")
	t.Setenv("TRACKING_BASE_URL", "https://env.example.com/")
	t.Setenv("TRACKING_SQS_QUEUE_URL", "https://sqs/queue")
	t.Setenv("AWS_SES_REGION", "us-east-1")
	t.Setenv("AWS_SES_ENABLED", "true")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	// Environment variables should override file values
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, "redis://env:6379", cfg.Redis.URL)
	assert.Equal(t, "https://env.example.com", cfg.Tracking.BaseURL)
	assert.Equal(t, "https://sqs/queue", cfg.Tracking.SQSQueueURL)
	assert.Equal(t, "us-east-1", cfg.SES.Region)
	assert.True(t, cfg.SES.Enabled)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFromEnvWithoutFile(t *testing.T) {
	cfg, err := LoadFromEnv("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Scheduler.Disabled)
	assert.False(t, cfg.Scheduler.SkipStartupRecovery)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}
