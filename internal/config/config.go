package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server             ServerConfig             `mapstructure:"server"`
	Auth               AuthConfig               `mapstructure:"auth"`
	SMS                SMSConfig                `mapstructure:"sms"`
	CORS               CORSConfig               `mapstructure:"cors"`
	RateLimit          RateLimitConfig          `mapstructure:"rate_limit"`
	Redis              RedisConfig              `mapstructure:"redis"`
	Supabase           SupabaseConfig           `mapstructure:"supabase"`
	Queue              QueueConfig              `mapstructure:"queue"`
	Delivery           DeliveryConfig           `mapstructure:"delivery"`
	RecipientRateLimit RecipientRateLimitConfig `mapstructure:"recipient_rate_limit"`
	RetryPoller        RetryPollerConfig        `mapstructure:"retry_poller"`
	Collaborator       CollaboratorConfig       `mapstructure:"collaborator"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// AuthConfig holds API key authentication settings.
type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

// SMSConfig holds SMS provider settings. When the Twilio credentials are
// absent the service runs with the simulated provider instead of failing.
type SMSConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
}

// Configured reports whether real provider credentials are present.
func (c SMSConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

// CORSConfig holds CORS policy settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SupabaseConfig holds Supabase project settings.
type SupabaseConfig struct {
	URL        string `mapstructure:"url"`
	ServiceKey string `mapstructure:"service_key"`
}

// QueueConfig holds async retry queue settings.
type QueueConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MaxRetry    int `mapstructure:"max_retry"`
}

// DeliveryConfig holds dispatch pipeline settings.
type DeliveryConfig struct {
	MaxAttempts    int `mapstructure:"max_attempts"`
	MaxBatchSize   int `mapstructure:"max_batch_size"`
	SendIntervalMs int `mapstructure:"send_interval_ms"`
}

// RecipientRateLimitConfig holds per-recipient rate limiting settings.
type RecipientRateLimitConfig struct {
	MaxPerHour int `mapstructure:"max_per_hour"`
}

// RetryPollerConfig holds retry poller settings (durations as seconds for YAML/env compat).
type RetryPollerConfig struct {
	IntervalSec int `mapstructure:"interval_sec"`
	BatchSize   int `mapstructure:"batch_size"`
}

// CollaboratorConfig holds settings for the record-management service that
// owns incident records and subject profiles.
type CollaboratorConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// Load reads configuration from config.yaml and environment variables.
// Environment variables use the GUARDLINE_ prefix and underscore separators.
// Example: GUARDLINE_SERVER_PORT overrides server.port in config.yaml.
func Load() (*Config, error) {
	v := viper.New()

	// Config file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Load .env file if it exists
	_ = godotenv.Load()

	// Environment variable settings
	v.SetEnvPrefix("GUARDLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8082)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.max_retry", 3)
	v.SetDefault("delivery.max_attempts", 3)
	v.SetDefault("delivery.max_batch_size", 100)
	v.SetDefault("delivery.send_interval_ms", 100)
	v.SetDefault("recipient_rate_limit.max_per_hour", 10)
	v.SetDefault("retry_poller.interval_sec", 60)
	v.SetDefault("retry_poller.batch_size", 50)

	// Read config file (optional — env vars can provide everything)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Handle comma-separated API keys from env var
	if apiKeysStr := v.GetString("auth.api_keys"); apiKeysStr != "" && len(cfg.Auth.APIKeys) == 0 {
		keys := strings.Split(apiKeysStr, ",")
		for i := range keys {
			keys[i] = strings.TrimSpace(keys[i])
		}
		cfg.Auth.APIKeys = keys
	}

	return &cfg, nil
}
