package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

const redisKeyPrefix = "verify:cache:"

// RedisClient is the subset of *redis.Client used by RedisStore.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	StrLen(ctx context.Context, key string) *redis.IntCmd
	Close() error
}

// RedisStore implements EntryStore on Redis. Values use the same JSON layout
// as FileStore. Keys also carry a server-side expiry so abandoned entries do
// not accumulate.
type RedisStore struct {
	client RedisClient
	expiry time.Duration
}

// NewRedis connects to the Redis server at url and pings it.
func NewRedis(ctx context.Context, url string, expiry time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "redis: parse url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "redis: ping")
	}
	return NewRedisWithClient(client, expiry), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client RedisClient, expiry time.Duration) *RedisStore {
	return &RedisStore{client: client, expiry: expiry}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "redis: get cache entry %s", key)
	}

	var rec fileRecord
	if err := json.Unmarshal(raw, &rec); err != nil || rec.Timestamp.IsZero() || len(rec.Result) == 0 {
		return nil, eris.Wrapf(ErrCorrupt, "redis: decode cache entry %s", key)
	}
	return &Entry{Key: key, Payload: rec.Result, StoredAt: rec.Timestamp}, nil
}

func (s *RedisStore) Put(ctx context.Context, e Entry) error {
	if !json.Valid(e.Payload) {
		return eris.Errorf("redis: payload for %s is not JSON", e.Key)
	}
	data, err := json.Marshal(fileRecord{Timestamp: e.StoredAt.UTC(), Result: e.Payload})
	if err != nil {
		return eris.Wrap(err, "redis: marshal")
	}
	return eris.Wrapf(s.client.Set(ctx, redisKeyPrefix+e.Key, data, s.expiry).Err(),
		"redis: put cache entry %s", e.Key)
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return eris.Wrapf(s.client.Del(ctx, redisKeyPrefix+key).Err(), "redis: delete cache entry %s", key)
}

func (s *RedisStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var stale []string
	err := s.scan(ctx, func(key string) error {
		e, err := s.Get(ctx, key)
		switch {
		case errors.Is(err, ErrCorrupt):
		case err != nil:
			return err
		case e == nil || !e.StoredAt.Before(cutoff):
			return nil
		}
		stale = append(stale, redisKeyPrefix+key)
		return nil
	})
	if err != nil || len(stale) == 0 {
		return 0, err
	}
	n, err := s.client.Del(ctx, stale...).Result()
	if err != nil {
		return 0, eris.Wrap(err, "redis: delete expired entries")
	}
	return int(n), nil
}

func (s *RedisStore) Clear(ctx context.Context) (int, error) {
	var keys []string
	if err := s.scan(ctx, func(key string) error {
		keys = append(keys, redisKeyPrefix+key)
		return nil
	}); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, eris.Wrap(err, "redis: clear cache")
	}
	return int(n), nil
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.scan(ctx, func(key string) error {
		n, err := s.client.StrLen(ctx, redisKeyPrefix+key).Result()
		if err != nil {
			return eris.Wrapf(err, "redis: strlen %s", key)
		}
		st.Items++
		st.Bytes += n
		return nil
	})
	return st, err
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) scan(ctx context.Context, fn func(key string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return eris.Wrap(err, "redis: scan")
		}
		for _, k := range keys {
			if err := fn(strings.TrimPrefix(k, redisKeyPrefix)); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
