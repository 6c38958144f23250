// Package cache is the TTL-expiring result cache that sits in front of the
// fetch strategies. Reads purge stale and corrupt entries lazily; writes
// never fail the caller.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/license-verify/internal/metrics"
	"github.com/sells-group/license-verify/internal/model"
	"github.com/sells-group/license-verify/internal/store"
)

// DefaultTTL is how long a cached result stays valid.
const DefaultTTL = 24 * time.Hour

// Cache is the read/write surface used by the dispatcher.
type Cache interface {
	Get(ctx context.Context, fingerprint string) (*model.VerificationResult, bool)
	Put(ctx context.Context, fingerprint string, result model.VerificationResult)
}

// Stats summarizes cache contents.
type Stats struct {
	CachedItems int     `json:"cached_items"`
	Bytes       int64   `json:"cache_size_bytes"`
	SizeMB      float64 `json:"cache_size_mb"`
	TTLHours    float64 `json:"ttl_hours"`
	Backend     string  `json:"backend,omitempty"`
}

// ResultCache implements Cache over a store.EntryStore.
type ResultCache struct {
	store   store.EntryStore
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
	backend string
}

// Option configures a ResultCache.
type Option func(*ResultCache)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *ResultCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects the time source used for ages and timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) { c.now = now }
}

// WithMetrics records lookups and writes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *ResultCache) { c.metrics = m }
}

// WithBackendName labels Stats output.
func WithBackendName(name string) Option {
	return func(c *ResultCache) { c.backend = name }
}

// New creates a ResultCache backed by st.
func New(st store.EntryStore, opts ...Option) *ResultCache {
	c := &ResultCache{store: st, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured entry lifetime.
func (c *ResultCache) TTL() time.Duration { return c.ttl }

// Get returns the cached result for fingerprint. Absent, expired, corrupt
// and unreadable entries are all misses; expired and corrupt ones are
// deleted.
func (c *ResultCache) Get(ctx context.Context, fingerprint string) (*model.VerificationResult, bool) {
	e, err := c.store.Get(ctx, fingerprint)
	if errors.Is(err, store.ErrCorrupt) {
		c.evict(ctx, fingerprint, "corrupt")
		return nil, false
	}
	if err != nil {
		zap.L().Warn("cache: read failed", zap.String("fingerprint", fingerprint), zap.Error(err))
		c.metrics.ObserveCacheLookup("error")
		return nil, false
	}
	if e == nil {
		c.metrics.ObserveCacheLookup("miss")
		return nil, false
	}

	if c.now().Sub(e.StoredAt) > c.ttl {
		c.evict(ctx, fingerprint, "expired")
		return nil, false
	}

	var r model.VerificationResult
	if err := json.Unmarshal(e.Payload, &r); err != nil || r.Status == "" {
		c.evict(ctx, fingerprint, "corrupt")
		return nil, false
	}
	r.Fill()
	c.metrics.ObserveCacheLookup("hit")
	return &r, true
}

func (c *ResultCache) evict(ctx context.Context, fingerprint, reason string) {
	c.metrics.ObserveCacheLookup(reason)
	if err := c.store.Delete(ctx, fingerprint); err != nil {
		zap.L().Warn("cache: evict failed",
			zap.String("fingerprint", fingerprint),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}

// Put stores result with a fresh timestamp. Failures are logged and
// swallowed.
func (c *ResultCache) Put(ctx context.Context, fingerprint string, result model.VerificationResult) {
	result.Cached = false
	payload, err := json.Marshal(result)
	if err != nil {
		zap.L().Warn("cache: encode failed", zap.String("fingerprint", fingerprint), zap.Error(err))
		c.metrics.ObserveCacheWrite("error")
		return
	}
	if err := c.store.Put(ctx, store.Entry{Key: fingerprint, Payload: payload, StoredAt: c.now()}); err != nil {
		zap.L().Warn("cache: write failed", zap.String("fingerprint", fingerprint), zap.Error(err))
		c.metrics.ObserveCacheWrite("error")
		return
	}
	c.metrics.ObserveCacheWrite("ok")
}

// Stats reports item count and size.
func (c *ResultCache) Stats(ctx context.Context) (Stats, error) {
	st, err := c.store.Stats(ctx)
	if err != nil {
		return Stats{}, eris.Wrap(err, "cache: stats")
	}
	return Stats{
		CachedItems: st.Items,
		Bytes:       st.Bytes,
		SizeMB:      math.Round(float64(st.Bytes)/(1024*1024)*100) / 100,
		TTLHours:    c.ttl.Hours(),
		Backend:     c.backend,
	}, nil
}

// Clear removes every entry.
func (c *ResultCache) Clear(ctx context.Context) (int, error) {
	n, err := c.store.Clear(ctx)
	return n, eris.Wrap(err, "cache: clear")
}

// Purge removes every entry older than the TTL.
func (c *ResultCache) Purge(ctx context.Context) (int, error) {
	n, err := c.store.DeleteBefore(ctx, c.now().Add(-c.ttl))
	return n, eris.Wrap(err, "cache: purge")
}

// Janitor purges expired entries every interval until ctx is done.
func (c *ResultCache) Janitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := c.Purge(ctx)
			if err != nil {
				zap.L().Warn("cache: janitor purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				zap.L().Info("cache: purged expired entries", zap.Int("removed", n))
			}
		}
	}
}
