// Package config provides configuration loading and validation utilities.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultConfigDir = "./configs"

// Load reads configuration from YAML files and environment variables, validates it, and returns the resulting Config.
func Load() (*Config, *viper.Viper, error) {
	if err := godotenv.Load(".env.local", ".env"); err != nil {
		// env files are optional; real deployments inject the environment directly
		_ = err
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	return LoadFrom(defaultConfigDir, env)
}

// LoadFrom reads <dir>/<env>.yaml when present, overlays environment variables and validates the result.
func LoadFrom(dir, env string) (*Config, *viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(env)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.AppEnv = env

	if err := Validate(&cfg); err != nil {
		return nil, nil, err
	}

	return &cfg, v, nil
}

// Validate checks struct tags and cross-field rules.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	seen := make(map[string]struct{}, len(cfg.Packs))
	for _, p := range cfg.Packs {
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("validate config: duplicate pack id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.mode", "polling")
	v.SetDefault("bot.timeout", "10s")
	v.SetDefault("bot.webhook_addr", ":8443")
	v.SetDefault("bot.webhook_url", "")
	v.SetDefault("bot.language", "ru")

	v.SetDefault("cryptopay.token", "")
	v.SetDefault("cryptopay.base_url", "https://pay.crypt.bot/api/")
	v.SetDefault("cryptopay.asset", "TON")
	v.SetDefault("cryptopay.description", "Покупка монет в DailyTasksBot")
	v.SetDefault("cryptopay.timeout", "10s")
	v.SetDefault("cryptopay.rps", 3)
	v.SetDefault("cryptopay.burst", 3)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "dailytasks")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "dailytasks")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("server.addr", ":9090")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.max_size_mb", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age_days", 14)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.per_user.limit", 20)
	v.SetDefault("ratelimit.per_user.window", "1m")
	v.SetDefault("ratelimit.commands", map[string]any{
		"buy": map[string]any{"limit": 5, "window": "1m"},
	})
	v.SetDefault("ratelimit.whitelist", []int64{})

	v.SetDefault("rewards.amount", 5)
	v.SetDefault("rewards.cooldown", "12h")

	v.SetDefault("reconcile.interval", "30s")
	v.SetDefault("reconcile.max_pending_age", "72h")
	v.SetDefault("reconcile.batch_size", 100)

	v.SetDefault("notify.max_retry", 8)
	v.SetDefault("notify.concurrency", 5)

	v.SetDefault("admins", []int64{})
	v.SetDefault("packs", []map[string]any{
		{"id": "pack1", "name": "100 монет", "coins": 100, "price": "0.05"},
		{"id": "pack2", "name": "300 монет", "coins": 300, "price": "0.12"},
		{"id": "pack3", "name": "1000 монет", "coins": 1000, "price": "0.35"},
	})
	v.SetDefault("tasks", []string{})
}
