package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igorribeiro98/al-tool/internal/domain"
	"github.com/igorribeiro98/al-tool/internal/storage/sqlite"
)

// newConciliacaoFixture wires a ready-to-run ConciliacaoStep context for a
// single (baseA, baseB, config) trio under job id 1.
func newConciliacaoFixture(t *testing.T, store *sqlite.Store, baseA, baseB, cfgID int64) *Context {
	t.Helper()
	pc := NewContext(store, 1)
	pc.ConfigConciliacaoID = cfgID
	pc.BaseContabilID = baseA
	pc.BaseFiscalID = baseB
	return pc
}

func resultRows(t *testing.T, store *sqlite.Store, jobID int64, keyIdentifiers []string) []map[string]any {
	t.Helper()
	table := sqlite.ResultTableName(jobID)
	cols, err := store.TableColumns(context.Background(), table)
	require.NoError(t, err)
	var names []string
	for _, c := range cols {
		names = append(names, c.Name)
	}
	ids, err := store.AllRowIDs(context.Background(), table)
	require.NoError(t, err)
	byID, err := store.FetchRowsByID(context.Background(), table, ids, names)
	require.NoError(t, err)

	var out []map[string]any
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out
}

// TestConciliacaoStep_S1_ExactMatchSingleKey mirrors scenario S1: two
// Base A rows exactly matching two Base B rows on a single key identifier.
func TestConciliacaoStep_S1_ExactMatchSingleKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	baseA := insertBase(t, store, "Base Contábil", "CONTABIL", map[string]string{"k": "TEXT", "v": "REAL"})
	baseB := insertBase(t, store, "Base Fiscal", "FISCAL", map[string]string{"k": "TEXT", "v": "REAL"})
	a, _ := store.GetBase(ctx, baseA)
	b, _ := store.GetBase(ctx, baseB)

	insertRow(t, store, a.TabelaSQLite, map[string]any{"k": "X", "v": 100.0})
	insertRow(t, store, a.TabelaSQLite, map[string]any{"k": "Y", "v": 50.0})
	insertRow(t, store, b.TabelaSQLite, map[string]any{"k": "X", "v": 100.0})
	insertRow(t, store, b.TabelaSQLite, map[string]any{"k": "Y", "v": 50.0})

	cfgID := insertConfigConciliacao(t, store, baseA, baseB, `["k"]`, `["k"]`, `["CHAVE_1"]`, "v", "v", false, 0)
	pc := newConciliacaoFixture(t, store, baseA, baseB, cfgID)

	require.NoError(t, NewConciliacaoStep().Run(ctx, pc))

	rows := resultRows(t, store, 1, []string{"CHAVE_1"})
	require.Len(t, rows, 4)
	for _, r := range rows {
		assert.Equal(t, domain.StatusConciliado, dbText(r["status"]))
		assert.Equal(t, domain.GrupoConciliado, dbText(r["grupo"]))
		assert.Equal(t, float64(0), r["difference"])
	}
}

// TestConciliacaoStep_S2_ImmaterialDifference mirrors scenario S2.
func TestConciliacaoStep_S2_ImmaterialDifference(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	baseA := insertBase(t, store, "Base Contábil", "CONTABIL", map[string]string{"k": "TEXT", "v": "REAL"})
	baseB := insertBase(t, store, "Base Fiscal", "FISCAL", map[string]string{"k": "TEXT", "v": "REAL"})
	a, _ := store.GetBase(ctx, baseA)
	b, _ := store.GetBase(ctx, baseB)

	insertRow(t, store, a.TabelaSQLite, map[string]any{"k": "K", "v": 100.0})
	insertRow(t, store, b.TabelaSQLite, map[string]any{"k": "K", "v": 100.005})

	cfgID := insertConfigConciliacao(t, store, baseA, baseB, `["k"]`, `["k"]`, `["CHAVE_1"]`, "v", "v", false, 0.01)
	pc := newConciliacaoFixture(t, store, baseA, baseB, cfgID)

	require.NoError(t, NewConciliacaoStep().Run(ctx, pc))

	rows := resultRows(t, store, 1, []string{"CHAVE_1"})
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, domain.StatusEncontradoDiferenca, dbText(r["status"]))
		assert.Equal(t, domain.GrupoDiferencaImaterial, dbText(r["grupo"]))
		assert.Equal(t, float64(100), r["value_a"])
		assert.Equal(t, 100.005, r["value_b"])
		assert.Equal(t, -0.005, r["difference"])
	}
}

// TestConciliacaoStep_S3_BaseAMaiorMaterial mirrors scenario S3.
func TestConciliacaoStep_S3_BaseAMaiorMaterial(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	baseA := insertBase(t, store, "Base Contábil", "CONTABIL", map[string]string{"k": "TEXT", "v": "REAL"})
	baseB := insertBase(t, store, "Base Fiscal", "FISCAL", map[string]string{"k": "TEXT", "v": "REAL"})
	a, _ := store.GetBase(ctx, baseA)
	b, _ := store.GetBase(ctx, baseB)

	insertRow(t, store, a.TabelaSQLite, map[string]any{"k": "K", "v": 200.0})
	insertRow(t, store, b.TabelaSQLite, map[string]any{"k": "K", "v": 150.0})

	cfgID := insertConfigConciliacao(t, store, baseA, baseB, `["k"]`, `["k"]`, `["CHAVE_1"]`, "v", "v", false, 0)
	pc := newConciliacaoFixture(t, store, baseA, baseB, cfgID)

	require.NoError(t, NewConciliacaoStep().Run(ctx, pc))

	rows := resultRows(t, store, 1, []string{"CHAVE_1"})
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, domain.StatusEncontradoDiferenca, dbText(r["status"]))
		assert.Equal(t, domain.GrupoBaseAMaior, dbText(r["grupo"]))
		assert.Equal(t, float64(50), r["difference"])
	}
}

// TestConciliacaoStep_S4_SignInversion mirrors scenario S4.
func TestConciliacaoStep_S4_SignInversion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	baseA := insertBase(t, store, "Base Contábil", "CONTABIL", map[string]string{"k": "TEXT", "v": "REAL"})
	baseB := insertBase(t, store, "Base Fiscal", "FISCAL", map[string]string{"k": "TEXT", "v": "REAL"})
	a, _ := store.GetBase(ctx, baseA)
	b, _ := store.GetBase(ctx, baseB)

	insertRow(t, store, a.TabelaSQLite, map[string]any{"k": "K", "v": 100.0})
	insertRow(t, store, b.TabelaSQLite, map[string]any{"k": "K", "v": -100.0})

	cfgID := insertConfigConciliacao(t, store, baseA, baseB, `["k"]`, `["k"]`, `["CHAVE_1"]`, "v", "v", true, 0)
	pc := newConciliacaoFixture(t, store, baseA, baseB, cfgID)

	require.NoError(t, NewConciliacaoStep().Run(ctx, pc))

	rows := resultRows(t, store, 1, []string{"CHAVE_1"})
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, domain.StatusConciliado, dbText(r["status"]))
		assert.Equal(t, float64(100), r["value_b"])
		assert.Equal(t, float64(0), r["difference"])
	}
}

// TestConciliacaoStep_S5_EstornoThenReconciliation mirrors scenario S5: it
// runs the Estorno step and then the Conciliação-AB step directly, in
// pipeline order, so rows 1/2 never reach the matcher.
func TestConciliacaoStep_S5_EstornoThenReconciliation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	baseA := insertBase(t, store, "Base Contábil", "CONTABIL", map[string]string{"k": "TEXT", "v": "REAL"})
	baseB := insertBase(t, store, "Base Fiscal", "FISCAL", map[string]string{"k": "TEXT", "v": "REAL"})
	a, _ := store.GetBase(ctx, baseA)
	b, _ := store.GetBase(ctx, baseB)

	insertRow(t, store, a.TabelaSQLite, map[string]any{"k": "X", "v": 100.0})
	insertRow(t, store, a.TabelaSQLite, map[string]any{"k": "X", "v": -100.0})
	insertRow(t, store, a.TabelaSQLite, map[string]any{"k": "Y", "v": 50.0})
	insertRow(t, store, b.TabelaSQLite, map[string]any{"k": "Y", "v": 50.0})

	estornoID := insertConfigEstorno(t, store, baseA, "k", "k", "v", 0)
	cfgID := insertConfigConciliacao(t, store, baseA, baseB, `["k"]`, `["k"]`, `["CHAVE_1"]`, "v", "v", false, 0)

	pc := newConciliacaoFixture(t, store, baseA, baseB, cfgID)
	pc.ConfigEstornoID = &estornoID

	require.NoError(t, NewEstornoStep().Run(ctx, pc))
	require.NoError(t, NewConciliacaoStep().Run(ctx, pc))

	rows := resultRows(t, store, 1, []string{"CHAVE_1"})
	// 2 marked-estorno rows + 2 matched Y rows = 4 result rows.
	require.Len(t, rows, 4)

	var estornoCount, conciliadoCount int
	for _, r := range rows {
		switch dbText(r["grupo"]) {
		case domain.GrupoConciliadoEstorno:
			estornoCount++
			assert.Equal(t, domain.StatusConciliado, dbText(r["status"]))
			valueA, valueB, diff := r["value_a"].(float64), r["value_b"].(float64), r["difference"].(float64)
			assert.Equal(t, float64(0), valueB, "marked A row carries value_b = 0")
			assert.Equal(t, valueA-valueB, diff, "P4: difference == value_a - value_b")
		case domain.GrupoConciliado:
			conciliadoCount++
		}
	}
	assert.Equal(t, 2, estornoCount)
	assert.Equal(t, 2, conciliadoCount)
}

// TestConciliacaoStep_S6_CancellationSuppressesBRows mirrors scenario S6.
func TestConciliacaoStep_S6_CancellationSuppressesBRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	baseA := insertBase(t, store, "Base Contábil", "CONTABIL", map[string]string{"k": "TEXT", "v": "REAL"})
	baseB := insertBase(t, store, "Base Fiscal", "FISCAL", map[string]string{"k": "TEXT", "v": "REAL", "s": "TEXT"})
	a, _ := store.GetBase(ctx, baseA)
	b, _ := store.GetBase(ctx, baseB)

	insertRow(t, store, a.TabelaSQLite, map[string]any{"k": "K", "v": 200.0})
	insertRow(t, store, b.TabelaSQLite, map[string]any{"k": "K", "v": 100.0, "s": "CANCELADA"})
	insertRow(t, store, b.TabelaSQLite, map[string]any{"k": "K", "v": 200.0, "s": "ATIVA"})

	cancelID := insertConfigCancelamento(t, store, baseB, "s", "CANCELADA")
	cfgID := insertConfigConciliacao(t, store, baseA, baseB, `["k"]`, `["k"]`, `["CHAVE_1"]`, "v", "v", false, 0)

	pc := newConciliacaoFixture(t, store, baseA, baseB, cfgID)
	pc.ConfigCancelamentoID = &cancelID

	require.NoError(t, NewCancelamentoStep().Run(ctx, pc))
	require.NoError(t, NewConciliacaoStep().Run(ctx, pc))

	rows := resultRows(t, store, 1, []string{"CHAVE_1"})
	require.Len(t, rows, 3)

	var canceladaCount, conciliadoCount int
	for _, r := range rows {
		switch dbText(r["grupo"]) {
		case domain.GrupoNFCancelada:
			canceladaCount++
			assert.Equal(t, domain.StatusNaoAvaliado, dbText(r["status"]))
			valueA, valueB, diff := r["value_a"].(float64), r["value_b"].(float64), r["difference"].(float64)
			assert.Equal(t, float64(0), valueA, "marked B row carries value_a = 0")
			assert.Equal(t, float64(100), valueB)
			assert.Equal(t, valueA-valueB, diff, "P4: difference == value_a - value_b")
		case domain.GrupoConciliado:
			conciliadoCount++
		}
	}
	assert.Equal(t, 1, canceladaCount)
	assert.Equal(t, 2, conciliadoCount)
}

// TestConciliacaoStep_ResidualUnmatchedRow confirms an A row with no
// corresponding B row is classified 03_Não Encontrado.
func TestConciliacaoStep_ResidualUnmatchedRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	baseA := insertBase(t, store, "Base Contábil", "CONTABIL", map[string]string{"k": "TEXT", "v": "REAL"})
	baseB := insertBase(t, store, "Base Fiscal", "FISCAL", map[string]string{"k": "TEXT", "v": "REAL"})
	a, _ := store.GetBase(ctx, baseA)
	b, _ := store.GetBase(ctx, baseB)
	_ = b

	insertRow(t, store, a.TabelaSQLite, map[string]any{"k": "Z", "v": 10.0})

	cfgID := insertConfigConciliacao(t, store, baseA, baseB, `["k"]`, `["k"]`, `["CHAVE_1"]`, "v", "v", false, 0)
	pc := newConciliacaoFixture(t, store, baseA, baseB, cfgID)

	require.NoError(t, NewConciliacaoStep().Run(ctx, pc))

	rows := resultRows(t, store, 1, []string{"CHAVE_1"})
	require.Len(t, rows, 1)
	assert.Equal(t, domain.StatusNaoEncontrado, dbText(rows[0]["status"]))
	assert.Equal(t, domain.GrupoNaoEncontrado, dbText(rows[0]["grupo"]))
	assert.Equal(t, "Z", dbText(rows[0]["CHAVE_1"]))
	assert.Equal(t, float64(10), rows[0]["value_a"])
	assert.Equal(t, float64(0), rows[0]["value_b"])
	assert.Equal(t, float64(10), rows[0]["difference"])
}
