package evidence

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Save(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 42, time.UTC)
	s, err := New(t.TempDir(), WithClock(func() time.Time { return at }))
	require.NoError(t, err)

	png := []byte("\x89PNG\r\n")
	ev, err := s.Save(context.Background(), "ca", "927123", png)
	require.NoError(t, err)

	name := "927123-" + strconv.FormatInt(at.UnixNano(), 10) + ".png"
	assert.Equal(t, filepath.Join(s.Dir(), "CA", name), ev.Path)
	assert.Equal(t, "CA/"+name, ev.Key)
	assert.Equal(t, len(png), ev.Bytes)
	assert.True(t, at.Equal(ev.CapturedAt))

	got, err := os.ReadFile(ev.Path)
	require.NoError(t, err)
	assert.Equal(t, png, got)

	entries, err := os.ReadDir(filepath.Join(s.Dir(), "CA"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestStore_SanitizesIdentifier(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	ev, err := s.Save(context.Background(), "NY", "../../etc/passwd 1", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir(), "NY"), filepath.Dir(ev.Path))
	assert.NotContains(t, filepath.Base(ev.Path), "/")
}

func TestStore_Rejects(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Save(context.Background(), "CA", "1", nil)
	assert.Error(t, err)
	_, err = s.Save(context.Background(), "  ", "1", []byte("png"))
	assert.Error(t, err)
}
