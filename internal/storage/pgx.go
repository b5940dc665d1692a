package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxCache is a Postgres ResourceCache on a pgx connection pool.
type PgxCache struct {
	pool *pgxpool.Pool
}

func OpenPgxCache(ctx context.Context, dsn string) (*PgxCache, error) {
	if dsn == "" {
		dsn = "postgres://localhost:5432/fxratemanager?sslmode=disable"
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &PgxCache{pool: pool}, nil
}

func (s *PgxCache) Close() error {
	s.pool.Close()
	return nil
}

func (s *PgxCache) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PgxCache) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS resource_cache (
		resource_id TEXT PRIMARY KEY,
		payload BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);`)
	return err
}

func (s *PgxCache) IsCached(ctx context.Context, id string) bool {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM resource_cache WHERE resource_id = $1)`, id).Scan(&exists)
	return err == nil && exists
}

func (s *PgxCache) Read(ctx context.Context, id string) ([]byte, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM resource_cache WHERE resource_id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotCached
		}
		return nil, err
	}
	return payload, nil
}

func (s *PgxCache) Write(ctx context.Context, id string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO resource_cache (resource_id, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (resource_id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, id, data)
	return err
}

func (s *PgxCache) Clear(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM resource_cache WHERE resource_id = $1`, id)
	return err
}
