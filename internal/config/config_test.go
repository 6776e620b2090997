package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"
  allowed_origins: ["https://console.example"]

database:
  url: "postgres://localhost/phishsim?sslmode=disable"

tracking:
  secret: "s3cret"
  base_url: "https://t.example"

dispatch:
  rate_per_interval: 120
  interval_seconds: 30

sender:
  type: "ses"
  from_email: "it@corp.example"

archive:
  type: "s3"
  s3_bucket: "phish-archive"
  dynamodb_table: "phish-archive-index"

campaign:
  max_recipients: 250
  observation_window_hours: 24
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"https://console.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "postgres://localhost/phishsim?sslmode=disable", cfg.Database.URL)

	assert.Equal(t, "s3cret", cfg.Tracking.Secret)
	assert.Equal(t, "https://t.example", cfg.Tracking.BaseURL)

	assert.Equal(t, 120, cfg.Dispatch.RatePerInterval)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.Interval())

	assert.Equal(t, "ses", cfg.Sender.Type)
	assert.Equal(t, "it@corp.example", cfg.Sender.FromEmail)

	assert.Equal(t, "s3", cfg.Archive.Type)
	assert.Equal(t, "phish-archive", cfg.Archive.S3Bucket)
	assert.Equal(t, "phish-archive-index", cfg.Archive.DynamoDBTable)

	assert.Equal(t, 250, cfg.Campaign.MaxRecipients)
	assert.Equal(t, 24*time.Hour, cfg.Campaign.ObservationWindow())
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 0\n"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 60, cfg.Dispatch.RatePerInterval)
	assert.Equal(t, time.Minute, cfg.Dispatch.Interval())
	assert.Equal(t, 100, cfg.Dispatch.BatchSize)
	assert.Equal(t, "log", cfg.Sender.Type)
	assert.Equal(t, 1000, cfg.Campaign.MaxRecipients)
	assert.Equal(t, 72*time.Hour, cfg.Campaign.ObservationWindow())
	assert.Equal(t, 30*time.Second, cfg.Campaign.SchedulerPoll())
	assert.Equal(t, 5*time.Minute, cfg.Campaign.ObservationPoll())
	assert.Equal(t, 3, cfg.Notify.MaxRetries)
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://db/phish")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("TRACKING_SECRET", "from-env")
	t.Setenv("SQS_QUEUE_URL", "https://sqs.us-east-1.amazonaws.com/1/tracking")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("NOTIFY_WEBHOOK_URL", "https://hooks.example/x")

	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "postgres://db/phish", cfg.Database.URL)
	assert.Equal(t, "redis://cache:6379/0", cfg.Redis.URL)
	assert.Equal(t, "from-env", cfg.Tracking.Secret)
	assert.Equal(t, "https://sqs.us-east-1.amazonaws.com/1/tracking", cfg.SQS.QueueURL)
	assert.Equal(t, "eu-west-1", cfg.SQS.Region)
	assert.Equal(t, "eu-west-1", cfg.Archive.AWSRegion)
	assert.Equal(t, "https://hooks.example/x", cfg.Notify.WebhookURL)
	assert.Equal(t, 1000, cfg.Campaign.MaxRecipients)
}

func TestArchiveAWSProfile(t *testing.T) {
	c := ArchiveConfig{AWSProfile: "dev"}
	assert.Equal(t, "dev", c.GetAWSProfile())

	t.Setenv("AWS_PROFILE_OVERRIDE", "iam")
	assert.Equal(t, "", c.GetAWSProfile())
}
