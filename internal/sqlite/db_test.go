package sqlite

import (
	"errors"
	"testing"

	"github.com/rpggio/lanes/internal/docstore"
	"github.com/stretchr/testify/require"
)

// NewTestDB creates a new in-memory SQLite database for testing
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(":memory:")
	require.NoError(t, err, "failed to create test database")

	err = db.RunMigrations()
	require.NoError(t, err, "failed to run migrations")

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// TestMigrations verifies that migrations run successfully
func TestMigrations(t *testing.T) {
	db := NewTestDB(t)

	for _, table := range []string{"documents", "counters", "api_keys"} {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err, "failed to query table %s", table)
		require.Equal(t, 1, count, "table %s not found", table)
	}

	// Running twice is harmless
	require.NoError(t, db.RunMigrations())

	var value int64
	require.NoError(t, db.QueryRow("SELECT value FROM counters WHERE name = 'commit'").Scan(&value))
	require.Zero(t, value)
}

func TestMapError(t *testing.T) {
	err := mapError(errors.New("attempt to write a readonly database (8)"))
	require.ErrorIs(t, err, docstore.ErrPermissionDenied)

	err = mapError(errors.New("database is locked (5) (SQLITE_BUSY)"))
	require.ErrorIs(t, err, docstore.ErrUnavailable)

	plain := errors.New("disk I/O error")
	require.Equal(t, plain, mapError(plain))
	require.NoError(t, mapError(nil))
}
