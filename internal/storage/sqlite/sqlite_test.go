package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := t.TempDir() + "/store-test.db"
	store, err := Open(context.Background(), DefaultConfig(path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func insertTestBase(t *testing.T, store *Store, nome, tipo string) int64 {
	t.Helper()
	ctx := context.Background()
	res, err := store.db.ExecContext(ctx, `INSERT INTO bases (nome, tipo, tabela_sqlite) VALUES (?, ?, '')`, nome, tipo)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	table := BaseTableName(id)
	_, err = store.db.ExecContext(ctx, `UPDATE bases SET tabela_sqlite = ? WHERE id = ?`, table, id)
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx, `CREATE TABLE "`+table+`" ("documento" TEXT, "valor" REAL)`)
	require.NoError(t, err)
	return id
}

// dbText normalizes a raw driver-scanned value for a TEXT column to a Go
// string — the driver may hand back either string or []byte depending on
// the column's originating query.
func dbText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}
