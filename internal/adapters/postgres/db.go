package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kevin07696/billing-pipeline/internal/domain/ports"
)

// Config holds pool-sizing knobs for the Postgres connection, mirroring
// the shape config.DatabaseConfig loads from the environment.
type Config struct {
	DatabaseURL     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Pool wraps a pgxpool.Pool, the single connection-pool handle every
// repository in this package shares.
type Pool struct {
	pool   *pgxpool.Pool
	logger ports.Logger
}

// NewPool parses cfg and establishes the connection pool, pinging once to
// fail fast on a bad DSN rather than surfacing the failure on first query.
func NewPool(ctx context.Context, cfg Config, logger ports.Logger) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database configuration: invalid connection parameters")
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("establish database connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database connection test failed: %w", err)
	}

	if logger != nil {
		logger.Info("postgres pool initialized",
			ports.String("host", poolConfig.ConnConfig.Host),
			ports.Int("max_conns", int(poolConfig.MaxConns)),
			ports.Int("min_conns", int(poolConfig.MinConns)),
		)
	}

	return &Pool{pool: pool, logger: logger}, nil
}

// Raw exposes the underlying pgxpool.Pool for repositories in this package.
func (p *Pool) Raw() *pgxpool.Pool { return p.pool }

// Close closes the pool.
func (p *Pool) Close() { p.pool.Close() }

// HealthCheck pings the pool.
func (p *Pool) HealthCheck(ctx context.Context) error { return p.pool.Ping(ctx) }
