// Package postgres opens the pgx pool and applies schema migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // migrate driver
	_ "github.com/golang-migrate/migrate/v4/source/file"       // file:// source
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config contains PostgreSQL connection configuration.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectAttempts int
}

// Connect opens a pool and pings it, retrying with exponential backoff.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	attempts := max(cfg.ConnectAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pool, err := open(ctx, poolConfig)
		if err == nil {
			logger.Info("connected to database", "attempts", attempt)
			return pool, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		backoff := calcBackoff(attempt)
		logger.Warn("database not ready, retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff", backoff,
			"error", err,
		)
		if !sleep(ctx, backoff) {
			return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("connect to database after %d attempts: %w", attempts, lastErr)
}

func open(ctx context.Context, poolConfig *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Migrate applies all up migrations from sourceURL (e.g. "file://migrations").
// It returns the resulting schema version.
func Migrate(sourceURL, databaseURL string) (uint, error) {
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return 0, fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("run migrations: %w", err)
	}

	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// calcBackoff returns exponential backoff duration capped at 16 seconds.
func calcBackoff(attempt int) time.Duration {
	return min(time.Duration(1<<(attempt-1))*time.Second, 16*time.Second)
}

// sleep waits for duration or context cancellation. Returns false if cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
