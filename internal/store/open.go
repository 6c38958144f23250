package store

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
)

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend  string
	Dir      string // file backend directory; sqlite database lives here too
	DSN      string // postgres connection string
	RedisURL string
	// Expiry is the server-side key expiry for backends that support it.
	Expiry time.Duration
	Pool   *PoolConfig
}

// Open creates the configured backend and runs its migrations.
func Open(ctx context.Context, opts Options) (EntryStore, error) {
	switch opts.Backend {
	case "", BackendFile:
		return NewFileStore(opts.Dir)
	case BackendSQLite:
		if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
			return nil, eris.Wrapf(err, "store: create %s", opts.Dir)
		}
		st, err := NewSQLite(filepath.Join(opts.Dir, "cache.db"))
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
		return st, nil
	case BackendPostgres:
		if opts.DSN == "" {
			return nil, eris.New("store: postgres backend requires a dsn")
		}
		st, err := NewPostgres(ctx, opts.DSN, opts.Pool)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
		return st, nil
	case BackendRedis:
		if opts.RedisURL == "" {
			return nil, eris.New("store: redis backend requires a url")
		}
		return NewRedis(ctx, opts.RedisURL, opts.Expiry)
	default:
		return nil, eris.Errorf("store: unknown backend %q", opts.Backend)
	}
}
