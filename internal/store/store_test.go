package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testEntryStore exercises the behavior every backend must share.
func testEntryStore(t *testing.T, st EntryStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		e, err := st.Get(ctx, "absent")
		require.NoError(t, err)
		assert.Nil(t, e)
	})

	t.Run("put get", func(t *testing.T) {
		require.NoError(t, st.Put(ctx, Entry{Key: "abc123", Payload: []byte(`{"status":"Active"}`), StoredAt: t0}))

		e, err := st.Get(ctx, "abc123")
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, "abc123", e.Key)
		assert.JSONEq(t, `{"status":"Active"}`, string(e.Payload))
		assert.True(t, t0.Equal(e.StoredAt), "stored_at %s", e.StoredAt)
	})

	t.Run("upsert last writer wins", func(t *testing.T) {
		later := t0.Add(time.Hour)
		require.NoError(t, st.Put(ctx, Entry{Key: "abc123", Payload: []byte(`{"status":"Expired"}`), StoredAt: later}))

		e, err := st.Get(ctx, "abc123")
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.JSONEq(t, `{"status":"Expired"}`, string(e.Payload))
		assert.True(t, later.Equal(e.StoredAt))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, st.Put(ctx, Entry{Key: "gone", Payload: []byte(`{}`), StoredAt: t0}))
		require.NoError(t, st.Delete(ctx, "gone"))
		require.NoError(t, st.Delete(ctx, "gone"))

		e, err := st.Get(ctx, "gone")
		require.NoError(t, err)
		assert.Nil(t, e)
	})

	t.Run("delete before and stats", func(t *testing.T) {
		_, err := st.Clear(ctx)
		require.NoError(t, err)

		require.NoError(t, st.Put(ctx, Entry{Key: "old1", Payload: []byte(`{"a":1}`), StoredAt: t0.Add(-48 * time.Hour)}))
		require.NoError(t, st.Put(ctx, Entry{Key: "old2", Payload: []byte(`{"a":2}`), StoredAt: t0.Add(-25 * time.Hour)}))
		require.NoError(t, st.Put(ctx, Entry{Key: "fresh", Payload: []byte(`{"a":3}`), StoredAt: t0}))

		stats, err := st.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Items)
		assert.Positive(t, stats.Bytes)

		n, err := st.DeleteBefore(ctx, t0.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		e, err := st.Get(ctx, "fresh")
		require.NoError(t, err)
		assert.NotNil(t, e)
		e, err = st.Get(ctx, "old1")
		require.NoError(t, err)
		assert.Nil(t, e)
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, st.Put(ctx, Entry{Key: "x1", Payload: []byte(`{}`), StoredAt: t0}))
		n, err := st.Clear(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1)

		stats, err := st.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.Items)
	})
}
