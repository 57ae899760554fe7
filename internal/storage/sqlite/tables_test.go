package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableColumns_ReturnsSchema(t *testing.T) {
	store := newTestStore(t)
	baseID := insertTestBase(t, store, "A", "CONTABIL")
	base, err := store.GetBase(context.Background(), baseID)
	require.NoError(t, err)

	cols, err := store.TableColumns(context.Background(), base.TabelaSQLite)
	require.NoError(t, err)

	var names []string
	for _, c := range cols {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "documento")
	assert.Contains(t, names, "valor")
}

func TestTableColumns_MissingTable(t *testing.T) {
	store := newTestStore(t)
	_, err := store.TableColumns(context.Background(), "does_not_exist")
	require.Error(t, err)
}

func TestHasColumn(t *testing.T) {
	store := newTestStore(t)
	baseID := insertTestBase(t, store, "A", "CONTABIL")
	base, _ := store.GetBase(context.Background(), baseID)

	has, err := store.HasColumn(context.Background(), base.TabelaSQLite, "valor")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = store.HasColumn(context.Background(), base.TabelaSQLite, "nope")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestStreamRows_VisitsEveryRowInOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	baseID := insertTestBase(t, store, "A", "CONTABIL")
	base, _ := store.GetBase(ctx, baseID)

	_, err := store.db.ExecContext(ctx, `INSERT INTO `+`"`+base.TabelaSQLite+`"`+` ("documento","valor") VALUES ('NF1', 10.0), ('NF2', 20.0)`)
	require.NoError(t, err)

	var seen []int64
	err = store.StreamRows(ctx, base.TabelaSQLite, func(rowID int64, values map[string]any) error {
		seen = append(seen, rowID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, seen)
}

func TestFetchRowsByID_ReturnsRequestedColumnsOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	baseID := insertTestBase(t, store, "A", "CONTABIL")
	base, _ := store.GetBase(ctx, baseID)

	_, err := store.db.ExecContext(ctx, `INSERT INTO `+`"`+base.TabelaSQLite+`"`+` ("documento","valor") VALUES ('NF1', 10.0)`)
	require.NoError(t, err)

	rows, err := store.FetchRowsByID(ctx, base.TabelaSQLite, []int64{1}, []string{"documento"})
	require.NoError(t, err)
	require.Contains(t, rows, int64(1))
	assert.Equal(t, "NF1", dbText(rows[1]["documento"]))
	_, hasValor := rows[1]["valor"]
	assert.False(t, hasValor)
}

func TestFetchRowsByID_EmptyIDsReturnsEmptyMap(t *testing.T) {
	store := newTestStore(t)
	baseID := insertTestBase(t, store, "A", "CONTABIL")
	base, _ := store.GetBase(context.Background(), baseID)

	rows, err := store.FetchRowsByID(context.Background(), base.TabelaSQLite, nil, []string{"documento"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestAllRowIDs_AscendingOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	baseID := insertTestBase(t, store, "A", "CONTABIL")
	base, _ := store.GetBase(ctx, baseID)

	_, err := store.db.ExecContext(ctx, `INSERT INTO `+`"`+base.TabelaSQLite+`"`+` ("documento","valor") VALUES ('a',1),('b',2),('c',3)`)
	require.NoError(t, err)

	ids, err := store.AllRowIDs(ctx, base.TabelaSQLite)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
}
