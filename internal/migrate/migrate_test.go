package migrate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/fxratemanager/internal/storage"
)

func TestMigrator_UpStatusDown(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "fx.db")

	m, err := New("sqlite", dsn, nil)
	require.NoError(t, err)
	defer m.Close()

	n, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	v, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	// Idempotent.
	n, err = m.Up(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	st, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, st, 2)
	for _, s := range st {
		assert.True(t, s.Applied, s.Path)
	}

	require.NoError(t, m.Down(ctx))
	v, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestMigrator_SchemaServesGormCache(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "fx.db")

	m, err := New("sqlite", dsn, nil)
	require.NoError(t, err)
	_, err = m.Up(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	c, err := storage.NewGormCache("sqlite", dsn)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Write(ctx, "ECB-daily", []byte("<xml/>")))
	got, err := c.Read(ctx, "ECB-daily")
	require.NoError(t, err)
	assert.Equal(t, []byte("<xml/>"), got)
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New("oracle", "", nil)
	assert.Error(t, err)
}
