package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/license-verify/internal/metrics"
	"github.com/sells-group/license-verify/internal/model"
	"github.com/sells-group/license-verify/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(t *testing.T, opts ...Option) (*ResultCache, *store.FileStore, *clock) {
	t.Helper()
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	clk := &clock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	return New(st, opts...), st, clk
}

func sampleResult() model.VerificationResult {
	r := model.NewResult("CA", "927123", model.StatusActive)
	r.HolderName = "Acme Builders Inc"
	r.Expiration = "2027-01-31"
	r.Method = model.FetchStatic
	r.FormatValid = true
	r.CheckedAt = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return r
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("CA", "927123", "")
	assert.Equal(t, a, Fingerprint("CA", "927123", ""))
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, Fingerprint("CA", "927123", "Acme"))
	assert.NotEqual(t, a, Fingerprint("FL", "927123", ""))
	assert.NotEqual(t, Fingerprint("A", "BC", ""), Fingerprint("AB", "C", ""))
	assert.NotEqual(t, Fingerprint("CA", "1:2", ""), Fingerprint("CA", "1", "2"))
}

func TestResultCache_RoundTrip(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()
	fp := Fingerprint("CA", "927123", "")

	_, ok := c.Get(ctx, fp)
	assert.False(t, ok)

	want := sampleResult()
	c.Put(ctx, fp, want)

	got, ok := c.Get(ctx, fp)
	require.True(t, ok)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.HolderName, got.HolderName)
	assert.Equal(t, want.Expiration, got.Expiration)
	assert.Equal(t, want.Method, got.Method)
	assert.True(t, want.CheckedAt.Equal(got.CheckedAt))
	assert.True(t, got.Verified)
}

func TestResultCache_ExpiresAfterTTL(t *testing.T) {
	c, st, clk := newTestCache(t)
	ctx := context.Background()
	fp := Fingerprint("CA", "927123", "")
	c.Put(ctx, fp, sampleResult())

	clk.Advance(DefaultTTL)
	_, ok := c.Get(ctx, fp)
	assert.True(t, ok, "entry exactly TTL old is still valid")

	clk.Advance(time.Second)
	_, ok = c.Get(ctx, fp)
	assert.False(t, ok)

	e, err := st.Get(ctx, fp)
	require.NoError(t, err)
	assert.Nil(t, e, "expired entry is purged on read")
}

func TestResultCache_CustomTTL(t *testing.T) {
	c, _, clk := newTestCache(t, WithTTL(time.Hour), WithTTL(-5))
	ctx := context.Background()
	c.Put(ctx, "k1", sampleResult())

	clk.Advance(61 * time.Minute)
	_, ok := c.Get(ctx, "k1")
	assert.False(t, ok)
	assert.Equal(t, time.Hour, c.TTL())
}

func TestResultCache_CorruptEntryPurged(t *testing.T) {
	c, st, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(st.Dir(), "bad.json"), []byte("{oops"), 0o600))

	_, ok := c.Get(ctx, "bad")
	assert.False(t, ok)
	_, err := os.Stat(filepath.Join(st.Dir(), "bad.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestResultCache_UndecodableResultPurged(t *testing.T) {
	c, st, clk := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, st.Put(ctx, store.Entry{Key: "weird", Payload: []byte(`{"status":42}`), StoredAt: clk.Now()}))

	_, ok := c.Get(ctx, "weird")
	assert.False(t, ok)
	e, err := st.Get(ctx, "weird")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestResultCache_FillsSentinels(t *testing.T) {
	c, st, clk := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, st.Put(ctx, store.Entry{Key: "sparse", Payload: []byte(`{"status":"Expired"}`), StoredAt: clk.Now()}))

	got, ok := c.Get(ctx, "sparse")
	require.True(t, ok)
	assert.Equal(t, model.Unknown, got.HolderName)
	assert.Equal(t, model.Unknown, got.Expiration)
	assert.True(t, got.Verified)
}

func TestResultCache_ErrorResultsCacheable(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()
	r := model.NewResult("FL", "CGC1524312", model.StatusError)
	r.Message = "fetch timed out"
	c.Put(ctx, "err", r)

	got, ok := c.Get(ctx, "err")
	require.True(t, ok)
	assert.Equal(t, model.StatusError, got.Status)
	assert.Equal(t, "fetch timed out", got.Message)
	assert.False(t, got.Verified)
}

// failingStore errors on every call.
type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) (*store.Entry, error) { return nil, f.err }
func (f failingStore) Put(context.Context, store.Entry) error { return f.err }
func (f failingStore) Delete(context.Context, string) error { return f.err }
func (f failingStore) DeleteBefore(context.Context, time.Time) (int, error) {
	return 0, f.err
}
func (f failingStore) Clear(context.Context) (int, error) { return 0, f.err }
func (f failingStore) Stats(context.Context) (store.Stats, error) { return store.Stats{}, f.err }
func (f failingStore) Close() error { return nil }

func TestResultCache_BackendFailuresSwallowed(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := New(failingStore{err: errors.New("disk full")}, WithMetrics(m))
	ctx := context.Background()

	assert.NotPanics(t, func() { c.Put(ctx, "k", sampleResult()) })
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheWrites.WithLabelValues("error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheLookups.WithLabelValues("error")), 0)

	_, err := c.Stats(ctx)
	assert.Error(t, err)
	_, err = c.Clear(ctx)
	assert.Error(t, err)
}

func TestResultCache_StatsClearPurge(t *testing.T) {
	c, _, clk := newTestCache(t, WithBackendName("file"))
	ctx := context.Background()

	c.Put(ctx, "old", sampleResult())
	clk.Advance(30 * time.Hour)
	c.Put(ctx, "new1", sampleResult())
	c.Put(ctx, "new2", sampleResult())

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.CachedItems)
	assert.Positive(t, stats.Bytes)
	assert.InDelta(t, 24, stats.TTLHours, 0)
	assert.Equal(t, "file", stats.Backend)

	n, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestResultCache_Janitor(t *testing.T) {
	c, st, clk := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())

	c.Put(ctx, "stale", sampleResult())
	clk.Advance(48 * time.Hour)

	done := make(chan error, 1)
	go func() { done <- c.Janitor(ctx, 10*time.Millisecond) }()

	assert.Eventually(t, func() bool {
		e, err := st.Get(context.Background(), "stale")
		return err == nil && e == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestResultCache_PutClearsCachedFlag(t *testing.T) {
	c, st, _ := newTestCache(t)
	ctx := context.Background()
	r := sampleResult()
	r.Cached = true
	c.Put(ctx, "k", r)

	e, err := st.Get(ctx, "k")
	require.NoError(t, err)
	assert.Contains(t, string(e.Payload), `"cached":false`)
}
