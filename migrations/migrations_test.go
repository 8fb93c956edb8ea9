package migrations

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

func openRaw(t *testing.T) *sql.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return sqlDB
}

func TestUpCreatesAllTablesAndRecordsOrdinals(t *testing.T) {
	sqlDB := openRaw(t)
	logger := zap.NewNop()

	require.NoError(t, Up(sqlDB, logger))

	for _, table := range []string{"instances", "snapshots", "health_samples", "metrics_samples", "schema_migrations"} {
		var name string
		err := sqlDB.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}

	var count int
	require.NoError(t, sqlDB.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestUpIsIdempotent(t *testing.T) {
	sqlDB := openRaw(t)
	logger := zap.NewNop()

	require.NoError(t, Up(sqlDB, logger))
	require.NoError(t, Up(sqlDB, logger))

	var count int
	require.NoError(t, sqlDB.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestDownRevertsOnlyTheLatestMigration(t *testing.T) {
	sqlDB := openRaw(t)
	logger := zap.NewNop()

	require.NoError(t, Up(sqlDB, logger))
	require.NoError(t, Down(sqlDB, logger))

	var count int
	require.NoError(t, sqlDB.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 1, count, "only the highest ordinal should have been reverted")

	var name string
	err := sqlDB.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='instances'`).Scan(&name)
	require.NoError(t, err, "0001_init's tables survive reverting 0002")
}
