package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements EntryStore using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS verification_cache (
	fingerprint TEXT PRIMARY KEY,
	result      TEXT NOT NULL,
	stored_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verification_cache_stored_at ON verification_cache(stored_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, result, stored_at FROM verification_cache WHERE fingerprint = ?`,
		key,
	)

	var e Entry
	var payload string
	err := row.Scan(&e.Key, &payload, &e.StoredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cache entry %s", key)
	}
	if !json.Valid([]byte(payload)) {
		return nil, eris.Wrapf(ErrCorrupt, "sqlite: decode cache entry %s", key)
	}
	e.Payload = []byte(payload)
	return &e, nil
}

func (s *SQLiteStore) Put(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verification_cache (fingerprint, result, stored_at) VALUES (?, ?, ?)
		 ON CONFLICT (fingerprint) DO UPDATE SET result = excluded.result, stored_at = excluded.stored_at`,
		e.Key, string(e.Payload), e.StoredAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: put cache entry %s", e.Key)
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM verification_cache WHERE fingerprint = ?`, key)
	return eris.Wrapf(err, "sqlite: delete cache entry %s", key)
}

func (s *SQLiteStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM verification_cache WHERE stored_at < ?`, cutoff.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired entries")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) Clear(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM verification_cache`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clear cache")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var bytes sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), SUM(LENGTH(result)) FROM verification_cache`,
	).Scan(&st.Items, &bytes)
	if err != nil {
		return Stats{}, eris.Wrap(err, "sqlite: cache stats")
	}
	st.Bytes = bytes.Int64
	return st, nil
}
