// Package postgres provides the PostgreSQL data access layer for coachd.
//
// It contains the connection pool setup and the hand-written query methods
// the domain stores consume through their Querier interfaces. Vector values
// are passed with pgvector-go, which is registered on every pooled connection.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// pingTimeout bounds the initial connectivity check.
const pingTimeout = 5 * time.Second

// Open creates a pgx connection pool for the given DSN and verifies
// connectivity with a bounded ping. The pgvector types are registered on
// every new connection so vector(384) columns scan into pgvector.Vector.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
