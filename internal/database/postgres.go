// Package database opens the PostgreSQL pool and applies embedded schema migrations.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/narvelay/daily-tasks-bot/pkg/config"
)

// Open connects to PostgreSQL, configures the pool and verifies connectivity.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*sql.DB, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("database connected",
		slog.String("host", cfg.Host),
		slog.String("name", cfg.Name),
	)

	return db, nil
}

// Checker adapts *sql.DB to the readiness probe.
type Checker struct {
	DB *sql.DB
}

func (c Checker) Check(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}
