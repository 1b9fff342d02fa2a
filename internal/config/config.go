package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Configuration errors. They are returned where the missing value is first
// needed so that unrelated commands keep working.
var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrMissingSupabase    = errors.New("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
	ErrMissingBucket      = errors.New("ANALYTICS_STORAGE_BUCKET is required")
)

// IsMissing reports whether err is one of the missing-setting errors.
func IsMissing(err error) bool {
	return errors.Is(err, ErrMissingDatabaseURL) ||
		errors.Is(err, ErrMissingSupabase) ||
		errors.Is(err, ErrMissingBucket)
}

// Source and store backends.
const (
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"
	BackendSQLite   = "sqlite"
	BackendS3       = "s3"
	BackendNone     = "none"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Supabase  SupabaseConfig  `mapstructure:"supabase"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Storage   StorageConfig   `mapstructure:"storage"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Alert     AlertConfig     `mapstructure:"alert"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

// ServerConfig holds trigger-service configuration.
// TriggerKey, when set, must be presented as a bearer token on POST /run.
type ServerConfig struct {
	Port       string `mapstructure:"port"`
	Env        string `mapstructure:"env"`
	TriggerKey string `mapstructure:"trigger_key"`
}

// LogConfig selects the logging backend and verbosity
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	Backend string `mapstructure:"backend"`
}

// DatabaseConfig configures extraction and run bookkeeping.
type DatabaseConfig struct {
	URL        string `mapstructure:"url"`
	Source     string `mapstructure:"source"`
	Store      string `mapstructure:"store"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// SupabaseConfig holds Supabase-specific configuration
type SupabaseConfig struct {
	URL        string `mapstructure:"url"`
	ServiceKey string `mapstructure:"service_key"`
}

// AnalyticsConfig tunes the pipeline run.
type AnalyticsConfig struct {
	StagingDir     string  `mapstructure:"staging_dir"`
	UserFilter     int64   `mapstructure:"user_filter"`
	MaxDurationSec int     `mapstructure:"max_duration_sec"`
	Components     int     `mapstructure:"components"`
	Clusters       int     `mapstructure:"clusters"`
	MaxLag         int     `mapstructure:"max_lag"`
	DeviationStd   float64 `mapstructure:"deviation_std"`
}

// StorageConfig selects where artifacts are uploaded.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	Bucket      string `mapstructure:"bucket"`
	Prefix      string `mapstructure:"prefix"`
	Endpoint    string `mapstructure:"endpoint"`
	Region      string `mapstructure:"region"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	Concurrency int    `mapstructure:"concurrency"`
}

// OpenAIConfig configures natural-language insight generation.
type OpenAIConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

// AlertConfig holds the alert webhook.
type AlertConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// NotifyConfig points at the application server notified after each run.
type NotifyConfig struct {
	ServerURL string `mapstructure:"server_url"`
	Key       string `mapstructure:"key"`
}

// Load reads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", "8090")
	v.SetDefault("server.env", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.backend", "slog")
	v.SetDefault("database.source", BackendPostgres)
	v.SetDefault("database.store", BackendPostgres)
	v.SetDefault("database.sqlite_path", "analytics.db")
	v.SetDefault("analytics.staging_dir", "staging")
	v.SetDefault("analytics.max_duration_sec", 1800)
	v.SetDefault("analytics.components", 5)
	v.SetDefault("analytics.clusters", 5)
	v.SetDefault("analytics.max_lag", 7)
	v.SetDefault("analytics.deviation_std", 1.0)
	v.SetDefault("storage.backend", BackendSupabase)
	v.SetDefault("storage.prefix", "analytics/{batch_id}")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.concurrency", 4)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.timeout_sec", 60)

	v.SetEnvPrefix("HEALTHLYTICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Also bind to the variable names used by the existing deployment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.url", "DATABASE_URL", "ANALYTICS_DB_URL")
	v.BindEnv("supabase.url", "SUPABASE_URL")
	v.BindEnv("supabase.service_key", "SUPABASE_SERVICE_KEY")
	v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("alert.webhook_url", "ALERT_WEBHOOK_URL")
	v.BindEnv("storage.bucket", "ANALYTICS_STORAGE_BUCKET")
	v.BindEnv("storage.prefix", "ANALYTICS_STORAGE_PREFIX")
	v.BindEnv("analytics.max_duration_sec", "ANALYTICS_MAX_DURATION_SEC")
	v.BindEnv("analytics.user_filter", "ANALYTICS_USER_FILTER")
	v.BindEnv("notify.server_url", "SERVER_BASE_URL")
	v.BindEnv("notify.key", "ANALYTICS_NOTIFY_KEY")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// It's okay if config file doesn't exist
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks enumerated settings. Missing credentials are reported by
// the Require* methods instead.
func (c *Config) Validate() error {
	switch c.Database.Source {
	case BackendPostgres, BackendSupabase:
	default:
		return fmt.Errorf("database.source must be postgres or supabase, got %q", c.Database.Source)
	}
	switch c.Database.Store {
	case BackendPostgres, BackendSupabase, BackendSQLite:
	default:
		return fmt.Errorf("database.store must be postgres, supabase or sqlite, got %q", c.Database.Store)
	}
	switch c.Storage.Backend {
	case BackendSupabase, BackendS3, BackendNone:
	default:
		return fmt.Errorf("storage.backend must be supabase, s3 or none, got %q", c.Storage.Backend)
	}
	if c.Analytics.Components < 1 || c.Analytics.Clusters < 1 || c.Analytics.MaxLag < 0 {
		return fmt.Errorf("analytics.components and analytics.clusters must be positive and analytics.max_lag non-negative")
	}
	return nil
}

// RequireDatabase returns the Postgres URL or ErrMissingDatabaseURL.
func (c *Config) RequireDatabase() (string, error) {
	if c.Database.URL == "" {
		return "", ErrMissingDatabaseURL
	}
	return c.Database.URL, nil
}

// RequireSupabase fails with ErrMissingSupabase unless URL and key are set.
func (c *Config) RequireSupabase() error {
	if c.Supabase.URL == "" || c.Supabase.ServiceKey == "" {
		return ErrMissingSupabase
	}
	return nil
}

// RequireBucket returns the upload bucket or ErrMissingBucket.
func (c *Config) RequireBucket() (string, error) {
	if c.Storage.Bucket == "" {
		return "", ErrMissingBucket
	}
	return c.Storage.Bucket, nil
}

// MaxDuration is the runtime above which a run raises an alert.
func (c *Config) MaxDuration() time.Duration {
	return time.Duration(c.Analytics.MaxDurationSec) * time.Second
}

// StoragePrefix resolves the object prefix for a batch. "{batch_id}" and
// "<batch_id>" placeholders are substituted; a prefix without a placeholder
// is treated as a base folder.
func (c *Config) StoragePrefix(batchID string) string {
	p := c.Storage.Prefix
	if p == "" {
		return "analytics/" + batchID
	}
	if strings.Contains(p, "{batch_id}") || strings.Contains(p, "<batch_id>") {
		p = strings.ReplaceAll(p, "{batch_id}", batchID)
		return strings.ReplaceAll(p, "<batch_id>", batchID)
	}
	return strings.TrimRight(p, "/") + "/" + batchID
}
