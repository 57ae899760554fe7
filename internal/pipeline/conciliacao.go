package pipeline

import (
	"context"
	"sort"

	"github.com/igorribeiro98/al-tool/internal/domain"
	"github.com/igorribeiro98/al-tool/internal/ptr"
	"github.com/igorribeiro98/al-tool/internal/storage/sqlite"
)

// ConciliacaoStep is the core matcher (§4.7): it consumes the marks left by
// EstornoStep/CancelamentoStep, groups every remaining row by composite key
// value one key identifier at a time, classifies each group, and writes the
// job's result table. It is the only step that writes conciliacao_result_*.
type ConciliacaoStep struct{}

func NewConciliacaoStep() *ConciliacaoStep { return &ConciliacaoStep{} }

func (s *ConciliacaoStep) Name() string  { return "ConciliacaoAB" }
func (s *ConciliacaoStep) Code() string  { return domain.StageConciliacaoAB }
func (s *ConciliacaoStep) Label() string { return "Conciliando bases A x B" }

func (s *ConciliacaoStep) Run(ctx context.Context, pc *Context) error {
	cfg, order, err := pc.GetConfigConciliacao(ctx, pc.ConfigConciliacaoID)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	baseA, err := pc.GetBase(ctx, pc.BaseContabilID)
	if err != nil {
		return err
	}
	baseB, err := pc.GetBase(ctx, pc.BaseFiscalID)
	if err != nil {
		return err
	}

	if err := pc.Store.EnsureResultTable(ctx, pc.JobID, order); err != nil {
		return err
	}

	var allRows []domain.ResultRow
	matchedA := make(map[int64]bool)
	matchedB := make(map[int64]bool)

	// Step 1: marks from Estorno-A/Cancelamento-B are direct classifications
	// — the matcher never re-examines a marked row.
	markedRows, err := ingestMarks(ctx, pc, cfg, baseA, baseB, matchedA, matchedB)
	if err != nil {
		return err
	}
	allRows = append(allRows, markedRows...)

	// Step 2: one key identifier at a time, group the still-unmatched rows
	// and classify each group. A row consumed under an earlier key
	// identifier is never reconsidered under a later one.
	for _, keyID := range order {
		aCols, okA := cfg.ChavesContabil[keyID]
		bCols, okB := cfg.ChavesFiscal[keyID]
		if !okA || !okB {
			continue // one-sided key identifier: no join partner, per Validate
		}

		groups, err := buildGroupsForKey(ctx, pc, baseA, baseB, keyID, aCols, bCols, matchedA, matchedB)
		if err != nil {
			return err
		}
		if len(groups) == 0 {
			continue
		}

		opts, err := groupOptsFor(ctx, pc, cfg, baseA, baseB, groups)
		if err != nil {
			return err
		}

		var result groupResult
		if len(groups) >= pc.PipelineCfg.ConciliacaoThreshold {
			result = processGroupsParallel(groups, opts, pc.PipelineCfg.ConciliacaoPoolSize)
		} else {
			result = processGroupsSynchronous(groups, opts)
		}

		allRows = append(allRows, result.rows...)
		for _, id := range result.matchedA {
			matchedA[id] = true
		}
		for _, id := range result.matchedB {
			matchedB[id] = true
		}
	}

	// Step 3: anything left over on either side after every key identifier
	// has been tried is unmatched.
	residuals, err := buildResiduals(ctx, pc, baseA, baseB, order, cfg, matchedA, matchedB)
	if err != nil {
		return err
	}
	allRows = append(allRows, residuals...)

	return pc.Store.InsertResultRows(ctx, pc.JobID, order, allRows, pc.PipelineCfg.ConciliacaoBatchSize)
}

// ingestMarks converts every recorded mark on baseA/baseB into a direct
// result row, without going through group classification — an estorno pair
// is already Conciliado, a canceled row is already "04_Não avaliado". Per
// §4.7 step 2, a marked A row carries its own amount as value_a (value_b =
// 0, difference = value_a); a marked B row carries its (optionally
// sign-inverted) amount as value_b (value_a = 0, difference = -value_b).
func ingestMarks(ctx context.Context, pc *Context, cfg domain.ConfigConciliacao, baseA, baseB domain.Base, matchedA, matchedB map[int64]bool) ([]domain.ResultRow, error) {
	var rows []domain.ResultRow

	aMarks, err := pc.Store.MarksByBase(ctx, baseA.ID)
	if err != nil {
		return nil, err
	}
	aMarkedIDs := make([]int64, 0, len(aMarks))
	for rowID := range aMarks {
		aMarkedIDs = append(aMarkedIDs, rowID)
	}
	aRows, err := pc.Store.FetchRowsByID(ctx, baseA.TabelaSQLite, aMarkedIDs, uniqueCols([]string{cfg.ColunaConciliacaoContabil}))
	if err != nil {
		return nil, err
	}
	for rowID, marks := range aMarks {
		valueA := round6(floatValue(aRows[rowID][cfg.ColunaConciliacaoContabil]))
		snapshot, _ := sqlite.MarshalRowSnapshot(aRows[rowID])
		for _, m := range marks {
			rows = append(rows, domain.ResultRow{
				JobID: pc.JobID, Chave: m.Chave, Status: m.Status, Grupo: m.Grupo,
				ARowID: ptr.To(rowID), AValues: &snapshot,
				ValueA: valueA, ValueB: 0, Difference: valueA,
			})
		}
		matchedA[rowID] = true
	}

	bMarks, err := pc.Store.MarksByBase(ctx, baseB.ID)
	if err != nil {
		return nil, err
	}
	bMarkedIDs := make([]int64, 0, len(bMarks))
	for rowID := range bMarks {
		bMarkedIDs = append(bMarkedIDs, rowID)
	}
	bRows, err := pc.Store.FetchRowsByID(ctx, baseB.TabelaSQLite, bMarkedIDs, uniqueCols([]string{cfg.ColunaConciliacaoFiscal}))
	if err != nil {
		return nil, err
	}
	for rowID, marks := range bMarks {
		valueB := floatValue(bRows[rowID][cfg.ColunaConciliacaoFiscal])
		if cfg.InverterSinalFiscal {
			valueB = -valueB
		}
		valueB = round6(valueB)
		snapshot, _ := sqlite.MarshalRowSnapshot(bRows[rowID])
		for _, m := range marks {
			rows = append(rows, domain.ResultRow{
				JobID: pc.JobID, Chave: m.Chave, Status: m.Status, Grupo: m.Grupo,
				BRowID: ptr.To(rowID), BValues: &snapshot,
				ValueA: 0, ValueB: valueB, Difference: round6(0 - valueB),
			})
		}
		matchedB[rowID] = true
	}

	return rows, nil
}

// buildGroupsForKey fetches every still-unmatched row on both sides and
// groups them by their composite key value for this identifier.
func buildGroupsForKey(ctx context.Context, pc *Context, baseA, baseB domain.Base, keyID string, aCols, bCols []string, matchedA, matchedB map[int64]bool) ([]matchGroup, error) {
	aIDs, err := unmatchedIDs(ctx, pc, baseA.TabelaSQLite, matchedA)
	if err != nil {
		return nil, err
	}
	bIDs, err := unmatchedIDs(ctx, pc, baseB.TabelaSQLite, matchedB)
	if err != nil {
		return nil, err
	}

	aFetchCols := uniqueCols(aCols)
	bFetchCols := uniqueCols(bCols)

	aRows, err := pc.Store.FetchRowsByID(ctx, baseA.TabelaSQLite, aIDs, aFetchCols)
	if err != nil {
		return nil, err
	}
	bRows, err := pc.Store.FetchRowsByID(ctx, baseB.TabelaSQLite, bIDs, bFetchCols)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*matchGroup)
	var order []string

	for _, id := range aIDs {
		val := compositeKeyValue(aRows[id], aCols)
		if val == "" {
			continue
		}
		g, ok := byKey[val]
		if !ok {
			g = &matchGroup{keyID: keyID, compVal: val}
			byKey[val] = g
			order = append(order, val)
		}
		g.aIDs = append(g.aIDs, id)
	}
	for _, id := range bIDs {
		val := compositeKeyValue(bRows[id], bCols)
		if val == "" {
			continue
		}
		g, ok := byKey[val]
		if !ok {
			g = &matchGroup{keyID: keyID, compVal: val}
			byKey[val] = g
			order = append(order, val)
		}
		g.bIDs = append(g.bIDs, id)
	}

	var groups []matchGroup
	for _, val := range order {
		g := byKey[val]
		if len(g.aIDs) == 0 || len(g.bIDs) == 0 {
			continue // only a match when both sides contributed to this key value
		}
		groups = append(groups, *g)
	}
	return groups, nil
}

// groupOptsFor loads the value columns/rows needed to classify the groups
// produced for one key identifier.
func groupOptsFor(ctx context.Context, pc *Context, cfg domain.ConfigConciliacao, baseA, baseB domain.Base, groups []matchGroup) (groupProcessorOpts, error) {
	var aIDs, bIDs []int64
	for _, g := range groups {
		aIDs = append(aIDs, g.aIDs...)
		bIDs = append(bIDs, g.bIDs...)
	}

	aCols, err := pc.Store.TableColumns(ctx, baseA.TabelaSQLite)
	if err != nil {
		return groupProcessorOpts{}, err
	}
	bCols, err := pc.Store.TableColumns(ctx, baseB.TabelaSQLite)
	if err != nil {
		return groupProcessorOpts{}, err
	}

	aRows, err := pc.Store.FetchRowsByID(ctx, baseA.TabelaSQLite, aIDs, columnNames(aCols))
	if err != nil {
		return groupProcessorOpts{}, err
	}
	bRows, err := pc.Store.FetchRowsByID(ctx, baseB.TabelaSQLite, bIDs, columnNames(bCols))
	if err != nil {
		return groupProcessorOpts{}, err
	}

	return groupProcessorOpts{
		valueColA: cfg.ColunaConciliacaoContabil,
		valueColB: cfg.ColunaConciliacaoFiscal,
		inverter:  cfg.InverterSinalFiscal,
		limite:    cfg.LimiteDiferencaImaterial,
		aRows:     aRows,
		bRows:     bRows,
		jobID:     pc.JobID,
	}, nil
}

// buildResiduals emits a "03_Não Encontrado" row for every base A/B row
// that never joined to anything on the other side, under any key
// identifier. Per §4.7 step 5, chave is the *key identifier* (e.g.
// "CHAVE_1"), value_a/value_b/difference mirror that row's own amount, and
// the per-key composite column is populated from the row.
func buildResiduals(ctx context.Context, pc *Context, baseA, baseB domain.Base, order []string, cfg domain.ConfigConciliacao, matchedA, matchedB map[int64]bool) ([]domain.ResultRow, error) {
	var rows []domain.ResultRow

	firstAKeyID, firstAKeyCols := firstAvailableKey(order, cfg.ChavesContabil)
	firstBKeyID, firstBKeyCols := firstAvailableKey(order, cfg.ChavesFiscal)

	aResidualIDs, err := unmatchedIDs(ctx, pc, baseA.TabelaSQLite, matchedA)
	if err != nil {
		return nil, err
	}
	if len(aResidualIDs) > 0 {
		fetchCols := uniqueCols(append(append([]string{}, firstAKeyCols...), cfg.ColunaConciliacaoContabil))
		aRows, err := pc.Store.FetchRowsByID(ctx, baseA.TabelaSQLite, aResidualIDs, fetchCols)
		if err != nil {
			return nil, err
		}
		for _, id := range aResidualIDs {
			row := aRows[id]
			var chave *string
			var keyValues map[string]string
			if firstAKeyID != "" {
				chave = ptr.To(firstAKeyID)
				keyValues = map[string]string{firstAKeyID: compositeKeyValue(row, firstAKeyCols)}
			}
			valueA := round6(floatValue(row[cfg.ColunaConciliacaoContabil]))
			snapshot, _ := sqlite.MarshalRowSnapshot(row)
			rows = append(rows, domain.ResultRow{
				JobID: pc.JobID, Chave: chave,
				Status: domain.StatusNaoEncontrado, Grupo: domain.GrupoNaoEncontrado,
				ARowID: ptr.To(id), AValues: &snapshot,
				ValueA: valueA, ValueB: 0, Difference: valueA,
				KeyValues: keyValues,
			})
		}
	}

	bResidualIDs, err := unmatchedIDs(ctx, pc, baseB.TabelaSQLite, matchedB)
	if err != nil {
		return nil, err
	}
	if len(bResidualIDs) > 0 {
		fetchCols := uniqueCols(append(append([]string{}, firstBKeyCols...), cfg.ColunaConciliacaoFiscal))
		bRows, err := pc.Store.FetchRowsByID(ctx, baseB.TabelaSQLite, bResidualIDs, fetchCols)
		if err != nil {
			return nil, err
		}
		for _, id := range bResidualIDs {
			row := bRows[id]
			var chave *string
			var keyValues map[string]string
			if firstBKeyID != "" {
				chave = ptr.To(firstBKeyID)
				keyValues = map[string]string{firstBKeyID: compositeKeyValue(row, firstBKeyCols)}
			}
			valueB := floatValue(row[cfg.ColunaConciliacaoFiscal])
			if cfg.InverterSinalFiscal {
				valueB = -valueB
			}
			valueB = round6(valueB)
			snapshot, _ := sqlite.MarshalRowSnapshot(row)
			rows = append(rows, domain.ResultRow{
				JobID: pc.JobID, Chave: chave,
				Status: domain.StatusNaoEncontrado, Grupo: domain.GrupoNaoEncontrado,
				BRowID: ptr.To(id), BValues: &snapshot,
				ValueA: 0, ValueB: valueB, Difference: round6(0 - valueB),
				KeyValues: keyValues,
			})
		}
	}

	return rows, nil
}

// firstAvailableKey returns the first key identifier (in order) present in
// cols, along with its column list.
func firstAvailableKey(order []string, cols domain.KeyColumns) (string, []string) {
	for _, k := range order {
		if c, ok := cols[k]; ok {
			return k, c
		}
	}
	return "", nil
}

func unmatchedIDs(ctx context.Context, pc *Context, table string, matched map[int64]bool) ([]int64, error) {
	all, err := pc.Store.AllRowIDs(ctx, table)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(all))
	for _, id := range all {
		if !matched[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func uniqueCols(cols []string) []string {
	seen := make(map[string]bool, len(cols))
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

func columnNames(cols []sqlite.ColumnInfo) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
