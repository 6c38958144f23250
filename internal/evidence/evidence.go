// Package evidence persists screenshots taken during interactive
// verification so a result can be audited later.
package evidence

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/license-verify/internal/model"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Store writes PNGs under <dir>/<CODE>/<ID>-<unixnano>.png.
type Store struct {
	dir string
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects the capture timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates dir if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, eris.Wrapf(err, "evidence: create %s", dir)
	}
	s := &Store{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// Save writes png and describes where it went. The file appears atomically.
func (s *Store) Save(_ context.Context, code, identifier string, png []byte) (*model.Evidence, error) {
	if len(png) == 0 {
		return nil, eris.New("evidence: empty screenshot")
	}
	code = sanitize(strings.ToUpper(code))
	if code == "" {
		return nil, eris.New("evidence: missing jurisdiction")
	}
	at := s.now().UTC()
	name := sanitize(identifier) + "-" + strconv.FormatInt(at.UnixNano(), 10) + ".png"

	dir := filepath.Join(s.dir, code)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, eris.Wrapf(err, "evidence: create %s", dir)
	}
	path := filepath.Join(dir, name)
	tmp := filepath.Join(dir, "."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, png, 0o640); err != nil {
		return nil, eris.Wrap(err, "evidence: write")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, eris.Wrap(err, "evidence: rename")
	}

	return &model.Evidence{
		Key:        code + "/" + name,
		Path:       path,
		Bytes:      len(png),
		CapturedAt: at,
	}, nil
}

func sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	return strings.Trim(s, "._")
}
