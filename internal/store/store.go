// Package store persists verification cache entries. Every backend keys
// entries by fingerprint and upserts on write, so concurrent writers for the
// same key resolve to last-writer-wins.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// Entry is one cached verification result. Payload is the JSON-encoded
// result; StoredAt is when it was written.
type Entry struct {
	Key      string
	Payload  []byte
	StoredAt time.Time
}

// Stats describes the current contents of a store.
type Stats struct {
	Items int   `json:"cached_items"`
	Bytes int64 `json:"bytes"`
}

// EntryStore defines the persistence interface for the result cache.
// Get returns (nil, nil) when no entry exists for key.
type EntryStore interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, e Entry) error
	Delete(ctx context.Context, key string) error
	// DeleteBefore removes entries stored before cutoff and reports how
	// many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
	Clear(ctx context.Context) (int, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// ErrCorrupt marks an entry that exists but cannot be decoded. Callers
// should delete it.
var ErrCorrupt = eris.New("store: corrupt entry")
