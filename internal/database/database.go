// Package database provides PostgreSQL connection management using pgx.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/config"
	"github.com/Shivanand-hulikatti/concert-ticket-booking/internal/logger"
)

// NewPool creates and validates a pgxpool connection pool.
// Connecting is retried under the given budget to accommodate containers
// starting up.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, retry Retry) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	err = retry.Do(ctx, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return pool, nil
}

// LogRetries returns an OnFailure hook that logs each failed attempt.
func LogRetries(target string, attempts int) func(int, error) {
	return func(attempt int, err error) {
		logger.Warn("storage connection failed",
			zap.String("target", target),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)
	}
}
