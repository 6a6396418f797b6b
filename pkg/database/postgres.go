package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresDB struct {
	Pool     *pgxpool.Pool
	ReadPool *pgxpool.Pool // nil when no replica is configured
}

// NewPostgresDB creates the primary connection pool and, when readURL differs
// from databaseURL, a second pool for read-only queries
func NewPostgresDB(ctx context.Context, databaseURL, readURL string) (*PostgresDB, error) {
	pool, err := newPool(ctx, databaseURL, "primary")
	if err != nil {
		return nil, err
	}

	db := &PostgresDB{Pool: pool}

	if readURL != "" && readURL != databaseURL {
		readPool, err := newPool(ctx, readURL, "replica")
		if err != nil {
			pool.Close()
			return nil, err
		}
		db.ReadPool = readPool
	}

	return db, nil
}

func newPool(ctx context.Context, databaseURL, role string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s database URL: %w", role, err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30
	config.HealthCheckPeriod = time.Minute
	config.ConnConfig.ConnectTimeout = time.Second * 5
	config.ConnConfig.RuntimeParams["application_name"] = "techblog-visitors"

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s connection pool: %w", role, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", role, err)
	}

	return pool, nil
}

// GetReadPool returns the replica pool, falling back to the primary
func (db *PostgresDB) GetReadPool() *pgxpool.Pool {
	if db.ReadPool != nil {
		return db.ReadPool
	}
	return db.Pool
}

// Close closes the database connection pools
func (db *PostgresDB) Close() {
	if db.ReadPool != nil {
		db.ReadPool.Close()
	}
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Health checks the database connection
func (db *PostgresDB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
