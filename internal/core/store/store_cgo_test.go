//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragly/xpanel/internal/config"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenMemoryStore(t *testing.T) {
	store := openMemory(t)
	require.Equal(t, "libsql", store.Driver())
	require.True(t, store.Local())
	require.NoError(t, store.Ping(context.Background()))
}

func TestMigrateRecordsVersions(t *testing.T) {
	ctx := context.Background()
	store := openMemory(t)

	version, err := store.SchemaVersion(ctx)
	require.Error(t, err, "schema_migrations does not exist before Migrate")
	require.Zero(t, version)

	require.NoError(t, store.Migrate(ctx))
	version, err = store.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, migrations[len(migrations)-1].version, version)

	require.NoError(t, store.Migrate(ctx))
	var applied int
	require.NoError(t, store.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	require.Equal(t, len(migrations), applied)
}

func TestOpenFileStoreConfiguresSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, config.StoreConfig{
		Driver: "libsql",
		Path:   filepath.Join(t.TempDir(), "nested", "xpanel.db"),
	})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.True(t, store.Local())
	require.Equal(t, 1, store.DB.Stats().MaxOpenConnections)

	var journalMode string
	require.NoError(t, store.DB.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
	require.Contains(t, journalMode, "wal")

	var busyTimeout int
	require.NoError(t, store.DB.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
	require.Equal(t, localBusyTimeoutMS, busyTimeout)
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "postgres", Path: ":memory:"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported store driver")
}
