package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewDB(context.Background(), filepath.Join(t.TempDir(), "nested", "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewDB_MigratesSchema(t *testing.T) {
	db := newTestDB(t)

	for _, table := range []string{"subjects", "feedback", "issues"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}
}

func TestNewDB_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")
	ctx := context.Background()

	db, err := NewDB(ctx, path)
	require.NoError(t, err)
	subjects := NewSubjects(db, time.Second)
	require.NoError(t, subjects.Upsert(ctx, SubjectRow{SubjectID: "S1", DisplayName: "Ann Lee"}))
	require.NoError(t, db.Close())

	db, err = NewDB(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	ok, err := NewSubjects(db, time.Second).Verify(ctx, "S1", "ann lee")
	require.NoError(t, err)
	require.True(t, ok)
}
