package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Tracking TrackingConfig `yaml:"tracking"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Sender   SenderConfig   `yaml:"sender"`
	SQS      SQSConfig      `yaml:"sqs"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Notify   NotifyConfig   `yaml:"notify"`
	Campaign CampaignConfig `yaml:"campaign"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig selects the persistence backend. An empty URL runs on the
// in-memory store.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig enables the shared campaign lock and dispatch rate limiter.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// TrackingConfig configures signed tracking links.
type TrackingConfig struct {
	Secret    string `yaml:"secret"`
	BaseURL   string `yaml:"base_url"`
	Port      int    `yaml:"port"`
	FilterBot bool   `yaml:"filter_bots"`
}

// DispatchConfig throttles delivery.
type DispatchConfig struct {
	RatePerInterval int `yaml:"rate_per_interval"`
	IntervalSeconds int `yaml:"interval_seconds"`
	BatchSize       int `yaml:"batch_size"`
	Workers         int `yaml:"workers"`
	RetrySeconds    int `yaml:"retry_seconds"`
}

// Interval returns the throttle window as a duration
func (c DispatchConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// RetryDelay returns the pause before a pass in which every send failed is
// retried.
func (c DispatchConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetrySeconds) * time.Second
}

// SenderConfig selects the email transport.
type SenderConfig struct {
	Type             string `yaml:"type"` // "log" or "ses"
	FromName         string `yaml:"from_name"`
	FromEmail        string `yaml:"from_email"`
	ReplyTo          string `yaml:"reply_to"`
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// SQSConfig routes tracking events through a queue when QueueURL is set.
type SQSConfig struct {
	QueueURL string `yaml:"queue_url"`
	Region   string `yaml:"region"`
}

// ArchiveConfig holds audit archive configuration
type ArchiveConfig struct {
	Type          string `yaml:"type"` // "", "local" or "s3"
	LocalPath     string `yaml:"local_path"`
	S3Bucket      string `yaml:"s3_bucket"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c ArchiveConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// NotifyConfig enables operator webhooks.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	MaxRetries int    `yaml:"max_retries"`
}

// CampaignConfig holds lifecycle limits and background worker cadence.
type CampaignConfig struct {
	MaxRecipients          int `yaml:"max_recipients"`
	ObservationWindowHours int `yaml:"observation_window_hours"`
	SchedulerPollSeconds   int `yaml:"scheduler_poll_seconds"`
	ObservationPollSeconds int `yaml:"observation_poll_seconds"`
}

// ObservationWindow returns how long a campaign stays active after delivery.
func (c CampaignConfig) ObservationWindow() time.Duration {
	return time.Duration(c.ObservationWindowHours) * time.Hour
}

// SchedulerPoll returns the scheduler poll interval
func (c CampaignConfig) SchedulerPoll() time.Duration {
	return time.Duration(c.SchedulerPollSeconds) * time.Second
}

// ObservationPoll returns the observation worker poll interval
func (c CampaignConfig) ObservationPoll() time.Duration {
	return time.Duration(c.ObservationPollSeconds) * time.Second
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied, for running
// without a config file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Tracking.Port == 0 {
		cfg.Tracking.Port = 8081
	}
	if cfg.Tracking.BaseURL == "" {
		cfg.Tracking.BaseURL = "http://localhost:8081"
	}
	if cfg.Dispatch.RatePerInterval == 0 {
		cfg.Dispatch.RatePerInterval = 60
	}
	if cfg.Dispatch.IntervalSeconds == 0 {
		cfg.Dispatch.IntervalSeconds = 60
	}
	if cfg.Dispatch.BatchSize == 0 {
		cfg.Dispatch.BatchSize = 100
	}
	if cfg.Dispatch.Workers == 0 {
		cfg.Dispatch.Workers = 4
	}
	if cfg.Dispatch.RetrySeconds == 0 {
		cfg.Dispatch.RetrySeconds = 60
	}
	if cfg.Sender.Type == "" {
		cfg.Sender.Type = "log"
	}
	if cfg.Sender.FromName == "" {
		cfg.Sender.FromName = "IT Support"
	}
	if cfg.Sender.FromEmail == "" {
		cfg.Sender.FromEmail = "support@example.com"
	}
	if cfg.Sender.Region == "" {
		cfg.Sender.Region = "us-east-1"
	}
	if cfg.SQS.Region == "" {
		cfg.SQS.Region = cfg.Sender.Region
	}
	if cfg.Archive.LocalPath == "" {
		cfg.Archive.LocalPath = "./data/archive"
	}
	if cfg.Archive.AWSRegion == "" {
		cfg.Archive.AWSRegion = "us-east-1"
	}
	if cfg.Notify.MaxRetries == 0 {
		cfg.Notify.MaxRetries = 3
	}
	if cfg.Campaign.MaxRecipients == 0 {
		cfg.Campaign.MaxRecipients = 1000
	}
	if cfg.Campaign.ObservationWindowHours == 0 {
		cfg.Campaign.ObservationWindowHours = 72
	}
	if cfg.Campaign.SchedulerPollSeconds == 0 {
		cfg.Campaign.SchedulerPollSeconds = 30
	}
	if cfg.Campaign.ObservationPollSeconds == 0 {
		cfg.Campaign.ObservationPollSeconds = 300
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS. A
// missing config file falls back to defaults.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if os.IsNotExist(err) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	// Database override (critical for ECS deployment where config.yaml has local defaults)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("TRACKING_SECRET"); v != "" {
		cfg.Tracking.Secret = v
	}
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.Tracking.BaseURL = v
	}
	if v := os.Getenv("SQS_QUEUE_URL"); v != "" {
		cfg.SQS.QueueURL = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.SQS.Region = v
		cfg.Archive.AWSRegion = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Sender.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Sender.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Sender.Region = v
	}
	if v := os.Getenv("SES_FROM_EMAIL"); v != "" {
		cfg.Sender.FromEmail = v
	}
	if v := os.Getenv("NOTIFY_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
	if v := os.Getenv("ARCHIVE_S3_BUCKET"); v != "" {
		cfg.Archive.S3Bucket = v
	}
}
