package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openBackends(t *testing.T) map[string]ResourceCache {
	t.Helper()
	ctx := context.Background()

	fc, err := NewFileCache(t.TempDir())
	require.NoError(t, err)

	sq, err := Open(ctx, Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "cache.db")}, zap.NewNop())
	require.NoError(t, err)

	backends := map[string]ResourceCache{
		"file":   fc,
		"memory": NewMemory(),
		"sqlite": sq,
	}
	t.Cleanup(func() {
		for _, b := range backends {
			b.Close()
		}
	})
	return backends
}

func TestResourceCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, c := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			assert.False(t, c.IsCached(ctx, "ECB-daily"))
			_, err := c.Read(ctx, "ECB-daily")
			assert.ErrorIs(t, err, ErrNotCached)

			require.NoError(t, c.Write(ctx, "ECB-daily", []byte("first")))
			require.NoError(t, c.Write(ctx, "ECB-daily", []byte("second")))
			assert.True(t, c.IsCached(ctx, "ECB-daily"))

			data, err := c.Read(ctx, "ECB-daily")
			require.NoError(t, err)
			assert.Equal(t, []byte("second"), data)

			require.NoError(t, c.Clear(ctx, "ECB-daily"))
			assert.False(t, c.IsCached(ctx, "ECB-daily"))
			// clearing twice is not an error
			require.NoError(t, c.Clear(ctx, "ECB-daily"))
			require.NoError(t, c.Ping(ctx))
		})
	}
}

func TestResourceCache_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	for name, c := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.Write(ctx, "a", []byte("A")))
			require.NoError(t, c.Write(ctx, "b/with slash", []byte("B")))

			a, err := c.Read(ctx, "a")
			require.NoError(t, err)
			b, err := c.Read(ctx, "b/with slash")
			require.NoError(t, err)
			assert.Equal(t, "A", string(a))
			assert.Equal(t, "B", string(b))
		})
	}
}

func TestMemoryCache_ReadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	src := []byte("payload")
	require.NoError(t, m.Write(ctx, "x", src))
	src[0] = 'X'

	got, err := m.Read(ctx, "x")
	require.NoError(t, err)
	got[1] = 'Y'

	again, err := m.Read(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(again))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "redis"}, nil)
	require.Error(t, err)
}

func TestOpen_FileDriverUsesDir(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(context.Background(), Config{Dir: dir}, nil)
	require.NoError(t, err)
	fc, ok := c.(*FileCache)
	require.True(t, ok)
	assert.Equal(t, dir, fc.Dir())
}
