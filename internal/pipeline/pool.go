package pipeline

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openstreetmap/osm2pgsql-go/internal/config"
)

// newPool opens a pgxpool sized for workers+1 connections (N way/relation
// workers plus one for schema setup and index creation), and never fewer
// than 4, grounded on the
// teacher's NewStreamingLoader connection sizing.
func newPool(cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	minConns := cfg.Workers + 1
	if minConns < 4 {
		minConns = 4
	}
	poolConfig.MaxConns = int32(minConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	return pool, nil
}

// ensureExtensions creates the postgis/hstore extensions and the target
// schema if they don't already exist.
func ensureExtensions(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return fmt.Errorf("create postgis extension: %w", err)
	}
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS hstore"); err != nil {
		return fmt.Errorf("create hstore extension: %w", err)
	}
	if schema != "" && schema != "public" {
		if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
