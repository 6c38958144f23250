package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements EntryStore using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS verification_cache (
	fingerprint TEXT PRIMARY KEY,
	result      JSONB NOT NULL,
	stored_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verification_cache_stored_at ON verification_cache(stored_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*Entry, error) {
	var e Entry
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT fingerprint, result, stored_at FROM verification_cache WHERE fingerprint = $1`,
		key,
	).Scan(&e.Key, &payload, &e.StoredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get cache entry %s", key)
	}
	if !json.Valid(payload) {
		return nil, eris.Wrapf(ErrCorrupt, "postgres: decode cache entry %s", key)
	}
	e.Payload = payload
	return &e, nil
}

func (s *PostgresStore) Put(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO verification_cache (fingerprint, result, stored_at) VALUES ($1, $2, $3)
		 ON CONFLICT (fingerprint) DO UPDATE SET result = $2, stored_at = $3`,
		e.Key, e.Payload, e.StoredAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: put cache entry %s", e.Key)
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM verification_cache WHERE fingerprint = $1`, key)
	return eris.Wrapf(err, "postgres: delete cache entry %s", key)
}

func (s *PostgresStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM verification_cache WHERE stored_at < $1`, cutoff.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired entries")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Clear(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM verification_cache`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear cache")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(pg_column_size(result)), 0) FROM verification_cache`,
	).Scan(&st.Items, &st.Bytes)
	if err != nil {
		return Stats{}, eris.Wrap(err, "postgres: cache stats")
	}
	return st, nil
}
