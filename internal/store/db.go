package store

import (
	"context"
	"fmt"

	"github.com/AhmAshraf1/PlanTech/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Open connects to the database named by cfg.URL and returns the matching Store.
// Migrations are not applied; call RunMigrations first.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Dialect() {
	case "postgres":
		pool, err := Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(pool), nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLitePath())
	default:
		return nil, fmt.Errorf("unsupported database URL %q", cfg.URL)
	}
}

// Connect opens a pgx pool sized from cfg and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
