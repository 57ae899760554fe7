package pipeline

import (
	"context"
	"log/slog"

	"github.com/igorribeiro98/al-tool/internal/domain"
	"github.com/igorribeiro98/al-tool/internal/storage/sqlite"
)

// EnsureIndexes creates a best-effort index on every column referenced by
// the job's active configs, then runs ANALYZE (§4.2). It runs once before
// the pipeline starts: the matcher's joins and the estorno/cancelamento
// queries all filter or join on these columns, and a cold base table
// otherwise forces a full scan per group.
//
// A column that fails to index (e.g. it no longer exists after a base was
// re-ingested with a different schema) is logged and skipped — the job
// still runs, just slower, rather than failing outright on an
// optimization that was never load-bearing for correctness.
func EnsureIndexes(ctx context.Context, pc *Context, logger *slog.Logger) error {
	cfg, _, err := pc.GetConfigConciliacao(ctx, pc.ConfigConciliacaoID)
	if err != nil {
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

	aCols := map[string]bool{cfg.ColunaConciliacaoContabil: true}
	for _, cols := range cfg.ChavesContabil {
		for _, c := range cols {
			aCols[c] = true
		}
	}
	bCols := map[string]bool{cfg.ColunaConciliacaoFiscal: true}
	for _, cols := range cfg.ChavesFiscal {
		for _, c := range cols {
			bCols[c] = true
		}
	}

	if pc.ConfigEstornoID != nil {
		est, err := pc.GetConfigEstorno(ctx, *pc.ConfigEstornoID)
		if err != nil {
			return err
		}
		aCols[est.ColunaA] = true
		aCols[est.ColunaB] = true
		aCols[est.ColunaSoma] = true
	}
	if pc.ConfigCancelamentoID != nil {
		canc, err := pc.GetConfigCancelamento(ctx, *pc.ConfigCancelamentoID)
		if err != nil {
			return err
		}
		bCols[canc.ColunaIndicador] = true
	}

	ensureColumnIndexes(ctx, pc, logger, baseA, aCols)
	ensureColumnIndexes(ctx, pc, logger, baseB, bCols)

	if err := pc.Store.Analyze(ctx); err != nil {
		logger.WarnContext(ctx, "index advisor: ANALYZE failed, continuing", "error", err)
	}
	return nil
}

func ensureColumnIndexes(ctx context.Context, pc *Context, logger *slog.Logger, base domain.Base, cols map[string]bool) {
	for col := range cols {
		if col == "" {
			continue
		}
		name := sqlite.IndexName(base.ID, col)
		if err := pc.Store.CreateIndexIfNotExists(ctx, name, base.TabelaSQLite, col); err != nil {
			logger.WarnContext(ctx, "index advisor: skipping column",
				"base_id", base.ID, "column", col, "error", err)
		}
	}
}
