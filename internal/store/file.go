package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const fileExt = ".json"

var safeKey = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// fileRecord is the on-disk layout: one JSON document per key.
type fileRecord struct {
	Timestamp time.Time       `json:"timestamp"`
	Result    json.RawMessage `json:"result"`
}

// FileStore implements EntryStore with one JSON file per key in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, eris.Wrapf(err, "file store: create %s", dir)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(key string) (string, error) {
	if !safeKey.MatchString(key) {
		return "", eris.Errorf("file store: invalid key %q", key)
	}
	return filepath.Join(s.dir, key+fileExt), nil
}

func (s *FileStore) Get(_ context.Context, key string) (*Entry, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p) //nolint:gosec
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "file store: read %s", key)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil || rec.Timestamp.IsZero() || len(rec.Result) == 0 {
		return nil, eris.Wrapf(ErrCorrupt, "file store: decode %s", key)
	}
	return &Entry{Key: key, Payload: rec.Result, StoredAt: rec.Timestamp}, nil
}

// Put writes the entry to a temp file and renames it into place so readers
// never observe a partial document.
func (s *FileStore) Put(_ context.Context, e Entry) error {
	p, err := s.path(e.Key)
	if err != nil {
		return err
	}
	if !json.Valid(e.Payload) {
		return eris.Errorf("file store: payload for %s is not JSON", e.Key)
	}
	data, err := json.Marshal(fileRecord{Timestamp: e.StoredAt.UTC(), Result: e.Payload})
	if err != nil {
		return eris.Wrap(err, "file store: marshal")
	}

	tmp := filepath.Join(s.dir, "."+e.Key+"-"+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return eris.Wrapf(err, "file store: write %s", e.Key)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "file store: rename %s", e.Key)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(err, "file store: delete %s", key)
	}
	return nil
}

// DeleteBefore removes entries older than cutoff. Undecodable files are
// removed as well.
func (s *FileStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	err := s.walk(ctx, func(key, path string, _ fs.FileInfo) error {
		e, err := s.Get(ctx, key)
		switch {
		case errors.Is(err, ErrCorrupt):
		case err != nil:
			zap.L().Warn("file store: skip unreadable entry", zap.String("key", key), zap.Error(err))
			return nil
		case e == nil || !e.StoredAt.Before(cutoff):
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return eris.Wrapf(err, "file store: delete %s", key)
		}
		removed++
		return nil
	})
	return removed, err
}

func (s *FileStore) Clear(ctx context.Context) (int, error) {
	removed := 0
	err := s.walk(ctx, func(key, path string, _ fs.FileInfo) error {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return eris.Wrapf(err, "file store: delete %s", key)
		}
		removed++
		return nil
	})
	return removed, err
}

func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.walk(ctx, func(_, _ string, info fs.FileInfo) error {
		st.Items++
		st.Bytes += info.Size()
		return nil
	})
	return st, err
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) walk(ctx context.Context, fn func(key, path string, info fs.FileInfo) error) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return eris.Wrapf(err, "file store: list %s", s.dir)
	}
	for _, de := range entries {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "file store: context cancelled")
		}
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		if err := fn(strings.TrimSuffix(name, fileExt), filepath.Join(s.dir, name), info); err != nil {
			return err
		}
	}
	return nil
}
