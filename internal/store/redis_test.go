package store

import (
	"context"
	"errors"
	"path"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis is an in-memory RedisClient. Scan pages two keys at a time so
// cursor handling is exercised.
type fakeRedis struct {
	mu      sync.Mutex
	data    map[string][]byte
	expiry  map[string]time.Duration
	failGet error
	closed  bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string][]byte{}, expiry: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return redis.NewStringResult("", f.failGet)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.data[key] = append([]byte(nil), v...)
	case string:
		f.data[key] = []byte(v)
	}
	f.expiry[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Scan(_ context.Context, cursor uint64, match string, _ int64) *redis.ScanCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.data {
		if ok, _ := path.Match(match, k); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := int(cursor)
	if start >= len(keys) {
		return redis.NewScanCmdResult(nil, 0, nil)
	}
	end := min(start+2, len(keys))
	next := uint64(end)
	if end == len(keys) {
		next = 0
	}
	return redis.NewScanCmdResult(keys[start:end], next, nil)
}

func (f *fakeRedis) StrLen(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return redis.NewIntResult(int64(len(f.data[key])), nil)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestRedisStore_Contract(t *testing.T) {
	testEntryStore(t, NewRedisWithClient(newFakeRedis(), 48*time.Hour))
}

func TestRedisStore_KeyPrefixAndExpiry(t *testing.T) {
	fake := newFakeRedis()
	st := NewRedisWithClient(fake, 48*time.Hour)

	require.NoError(t, st.Put(context.Background(), Entry{Key: "fp1", Payload: []byte(`{}`), StoredAt: t0}))
	assert.Contains(t, fake.data, "verify:cache:fp1")
	assert.Equal(t, 48*time.Hour, fake.expiry["verify:cache:fp1"])
}

func TestRedisStore_IgnoresForeignKeys(t *testing.T) {
	fake := newFakeRedis()
	fake.data["session:abc"] = []byte("x")
	st := NewRedisWithClient(fake, 0)

	n, err := st.Clear(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Contains(t, fake.data, "session:abc")
}

func TestRedisStore_Corrupt(t *testing.T) {
	fake := newFakeRedis()
	fake.data["verify:cache:bad"] = []byte("nope")
	st := NewRedisWithClient(fake, 0)

	_, err := st.Get(context.Background(), "bad")
	assert.True(t, errors.Is(err, ErrCorrupt))

	n, err := st.DeleteBefore(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRedisStore_GetError(t *testing.T) {
	fake := newFakeRedis()
	fake.failGet = errors.New("i/o timeout")
	st := NewRedisWithClient(fake, 0)

	_, err := st.Get(context.Background(), "fp")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCorrupt))
}

func TestRedisStore_Close(t *testing.T) {
	fake := newFakeRedis()
	require.NoError(t, NewRedisWithClient(fake, 0).Close())
	assert.True(t, fake.closed)
}
