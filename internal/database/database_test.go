package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func migratedDB(t *testing.T) (context.Context, *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	// nested dir exercises Open's mkdir
	dbPath := filepath.Join(t.TempDir(), "state", "meshview.db")
	require.NoError(t, RunMigrations(dbPath))
	require.NoError(t, RunMigrations(dbPath), "second run is a no-op")

	db, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return ctx, db
}

func TestMigrationsCreateSchema(t *testing.T) {
	t.Parallel()
	ctx, db := migratedDB(t)

	for _, table := range []string{"app_state", "sessions"} {
		var count int
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 1, count, "table %s", table)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	t.Parallel()
	ctx, db := migratedDB(t)

	boom := errors.New("boom")
	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO app_state(key, value) VALUES ('k', 'v')`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM app_state`).Scan(&count))
	require.Zero(t, count)
}

func TestReset(t *testing.T) {
	t.Parallel()
	ctx, db := migratedDB(t)

	_, err := db.ExecContext(ctx, `INSERT INTO app_state(key, value) VALUES ('app', '{}')`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO sessions(id, url, started_at) VALUES ('s', 'ws://x', CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	require.NoError(t, Reset(ctx, db))

	for _, table := range []string{"app_state", "sessions"} {
		var count int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count))
		require.Zero(t, count, "table %s", table)
	}
	require.Error(t, Reset(ctx, nil))
}
