package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/igorribeiro98/al-tool/internal/storage/sqlite"
)

// newTestStore opens a fresh temp-file SQLite store with migrations
// applied, closed automatically at test cleanup.
func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	path := t.TempDir() + "/al-tool-test.db"
	store, err := sqlite.Open(context.Background(), sqlite.DefaultConfig(path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// insertBase registers a base row and creates its backing data table with
// the given column definitions (name -> SQLite type affinity), returning
// the new base id.
func insertBase(t *testing.T, store *sqlite.Store, nome string, tipo string, cols map[string]string) int64 {
	t.Helper()
	ctx := context.Background()

	res, err := store.DB().ExecContext(ctx,
		`INSERT INTO bases (nome, tipo, tabela_sqlite) VALUES (?, ?, '')`, nome, tipo)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)

	table := sqlite.BaseTableName(id)
	_, err = store.DB().ExecContext(ctx,
		`UPDATE bases SET tabela_sqlite = ? WHERE id = ?`, table, id)
	require.NoError(t, err)

	ddl := fmt.Sprintf(`CREATE TABLE %q (`, table)
	i := 0
	for name, typ := range cols {
		if i > 0 {
			ddl += ", "
		}
		ddl += fmt.Sprintf("%q %s", name, typ)
		i++
	}
	ddl += ")"
	_, err = store.DB().ExecContext(ctx, ddl)
	require.NoError(t, err)

	return id
}

// insertRow inserts one data row into base's table and returns its rowid.
func insertRow(t *testing.T, store *sqlite.Store, table string, values map[string]any) int64 {
	t.Helper()
	ctx := context.Background()

	cols := make([]string, 0, len(values))
	placeholders := ""
	args := make([]any, 0, len(values))
	for name, v := range values {
		cols = append(cols, fmt.Sprintf("%q", name))
		if len(args) > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, v)
	}
	colList := ""
	for i, c := range cols {
		if i > 0 {
			colList += ", "
		}
		colList += c
	}

	res, err := store.DB().ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`, table, colList, placeholders), args...)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func insertConfigConciliacao(t *testing.T, store *sqlite.Store, baseA, baseB int64, chavesContabil, chavesFiscal, order string, colA, colB string, inverter bool, limite float64) int64 {
	t.Helper()
	res, err := store.DB().ExecContext(context.Background(), `
		INSERT INTO config_conciliacao
			(base_contabil_id, base_fiscal_id, chaves_contabil, chaves_fiscal, chaves_order,
			 coluna_conciliacao_contabil, coluna_conciliacao_fiscal, inverter_sinal_fiscal, limite_diferenca_imaterial)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		baseA, baseB, chavesContabil, chavesFiscal, order, colA, colB, boolToInt(inverter), limite)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func insertConfigEstorno(t *testing.T, store *sqlite.Store, baseID int64, colA, colB, colSoma string, limiteZero float64) int64 {
	t.Helper()
	res, err := store.DB().ExecContext(context.Background(), `
		INSERT INTO config_estorno (base_id, coluna_a, coluna_b, coluna_soma, limite_zero)
		VALUES (?, ?, ?, ?, ?)`, baseID, colA, colB, colSoma, limiteZero)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func insertConfigCancelamento(t *testing.T, store *sqlite.Store, baseID int64, colIndicador, valorCancelado string) int64 {
	t.Helper()
	res, err := store.DB().ExecContext(context.Background(), `
		INSERT INTO config_cancelamento (base_id, coluna_indicador, valor_cancelado)
		VALUES (?, ?, ?)`, baseID, colIndicador, valorCancelado)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// dbText normalizes a raw driver-scanned value for a TEXT column to a Go
// string — the driver may hand back either string or []byte depending on
// the column's originating query, and tests comparing against a literal
// string need a stable representation.
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
