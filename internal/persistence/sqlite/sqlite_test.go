// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenEnablesWAL(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "wal.db"), DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var mode string
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestMigrateIsVersioned(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "migrate.db"), DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	schema := `CREATE TABLE IF NOT EXISTS things (id TEXT PRIMARY KEY);`
	require.NoError(t, Migrate(ctx, db, 1, schema))

	var version int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, 1, version)

	// A lower version is a no-op even with a broken schema.
	require.NoError(t, Migrate(ctx, db, 1, "THIS IS NOT SQL"))
	require.Error(t, Migrate(ctx, db, 2, "THIS IS NOT SQL"))
}

func TestCheckIntegrity(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "verify.db"), DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.NoError(t, Migrate(ctx, db, 1, "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)"))
	assert.NoError(t, CheckIntegrity(ctx, db, false))
	assert.NoError(t, CheckIntegrity(ctx, db, true))
}

func TestCheckIntegrityClosedDB(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "closed.db"), DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	err = CheckIntegrity(ctx, db, false)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCorrupt)
}
