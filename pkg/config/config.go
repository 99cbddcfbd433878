package config

import (
	"fmt"
	"time"
)

// Config holds runtime configuration for the daily tasks bot.
type Config struct {
	AppEnv string `mapstructure:"app_env"`

	Bot       BotConfig       `mapstructure:"bot"`
	CryptoPay CryptoPayConfig `mapstructure:"cryptopay"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Server    ServerConfig    `mapstructure:"server"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`

	Rewards   RewardsConfig   `mapstructure:"rewards"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Notify    NotifyConfig    `mapstructure:"notify"`

	// Admins is the allowlist of Telegram user ids allowed to run /admin.
	Admins []int64 `mapstructure:"admins"`
	// Packs defines the coin packs offered in /shop, in display order.
	Packs []PackConfig `mapstructure:"packs" validate:"required,min=1,dive"`
	// Tasks is an optional fallback list used when the tasks table is empty.
	Tasks []string `mapstructure:"tasks"`
}

// BotConfig configures the Telegram transport.
type BotConfig struct {
	Token       string        `mapstructure:"token" validate:"required"`
	Mode        string        `mapstructure:"mode" validate:"oneof=polling webhook"`
	Timeout     time.Duration `mapstructure:"timeout"`
	WebhookAddr string        `mapstructure:"webhook_addr"`
	WebhookURL  string        `mapstructure:"webhook_url" validate:"required_if=Mode webhook"`
	Language    string        `mapstructure:"language" validate:"required"`
}

// CryptoPayConfig configures the Crypto Pay API client.
type CryptoPayConfig struct {
	Token       string        `mapstructure:"token" validate:"required"`
	BaseURL     string        `mapstructure:"base_url" validate:"required,url"`
	Asset       string        `mapstructure:"asset" validate:"required"`
	Description string        `mapstructure:"description"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RPS         float64       `mapstructure:"rps" validate:"gt=0"`
	Burst       int           `mapstructure:"burst" validate:"gte=1"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            string        `mapstructure:"port" validate:"required"`
	User            string        `mapstructure:"user" validate:"required"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name" validate:"required"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig defines Redis connection parameters.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	PoolSize int    `mapstructure:"pool_size"`
}

// ServerConfig configures the metrics and health HTTP server.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// LoggerConfig controls log output.
type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SentryConfig toggles error reporting.
type SentryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn" validate:"required_if=Enabled true"`
}

// RateLimitRule is a "limit per window" pair, window given as a duration string.
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

// RateLimitConfig configures per-user and per-command limits.
type RateLimitConfig struct {
	Enabled   bool                     `mapstructure:"enabled"`
	PerUser   RateLimitRule            `mapstructure:"per_user"`
	Commands  map[string]RateLimitRule `mapstructure:"commands"`
	Whitelist []int64                  `mapstructure:"whitelist"`
}

// RewardsConfig defines the task reward and its cooldown.
type RewardsConfig struct {
	Amount   int64         `mapstructure:"amount" validate:"gt=0"`
	Cooldown time.Duration `mapstructure:"cooldown" validate:"gt=0"`
}

// ReconcileConfig controls the pending invoice polling pass.
type ReconcileConfig struct {
	Interval      time.Duration `mapstructure:"interval" validate:"gt=0"`
	MaxPendingAge time.Duration `mapstructure:"max_pending_age" validate:"gt=0"`
	BatchSize     int           `mapstructure:"batch_size" validate:"gt=0"`
}

// NotifyConfig controls delivery of payment confirmations.
type NotifyConfig struct {
	MaxRetry    int `mapstructure:"max_retry" validate:"gte=0"`
	Concurrency int `mapstructure:"concurrency" validate:"gt=0"`
}

// PackConfig describes a purchasable coin pack.
type PackConfig struct {
	ID    string `mapstructure:"id" validate:"required"`
	Name  string `mapstructure:"name" validate:"required"`
	Coins int64  `mapstructure:"coins" validate:"gt=0"`
	Price string `mapstructure:"price" validate:"required,numeric"`
}

// DSN returns the PostgreSQL connection string built from the config values.
func (c DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		sslMode,
	)
}

// IsAdmin reports whether the Telegram user id is in the admin allowlist.
func (c Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admins {
		if id == userID {
			return true
		}
	}
	return false
}
