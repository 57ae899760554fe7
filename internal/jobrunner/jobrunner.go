// Package jobrunner drives one reconciliation job end to end: it loads the
// job, resolves its effective base ids, builds indexes, runs the five
// pipeline stages, and records the terminal DONE/FAILED status.
package jobrunner

import (
	"context"
	"log/slog"

	"github.com/igorribeiro98/al-tool/internal/config"
	"github.com/igorribeiro98/al-tool/internal/domain"
	"github.com/igorribeiro98/al-tool/internal/pipeline"
	"github.com/igorribeiro98/al-tool/internal/storage/sqlite"
)

// Run executes jobID's reconciliation pipeline to completion. It never
// returns an error for a job-level failure — those are recorded on the job
// row via FinishJobFailure and reported through the returned error only if
// even that bookkeeping write fails. A non-nil return therefore means the
// job's terminal state itself could not be persisted, which callers (the
// worker) should treat as a job that needs re-inspection rather than a
// clean failure.
func Run(ctx context.Context, store *sqlite.Store, pipelineCfg config.PipelineConfig, logger *slog.Logger, jobID int64) error {
	job, err := store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	runErr := runPipeline(ctx, store, pipelineCfg, logger, job)
	if runErr != nil {
		logger.ErrorContext(ctx, "job failed", "job_id", jobID, "error", runErr)
		return store.FinishJobFailure(ctx, jobID, runErr)
	}
	return store.FinishJobSuccess(ctx, jobID)
}

func runPipeline(ctx context.Context, store *sqlite.Store, pipelineCfg config.PipelineConfig, logger *slog.Logger, job domain.Job) error {
	pc := pipeline.NewContext(store, job.ID)
	pc.ConfigConciliacaoID = job.ConfigConciliacaoID
	pc.ConfigEstornoID = job.ConfigEstornoID
	pc.ConfigCancelamentoID = job.ConfigCancelamentoID
	pc.PipelineCfg = pipelineCfg

	cfg, _, err := pc.GetConfigConciliacao(ctx, job.ConfigConciliacaoID)
	if err != nil {
		return err
	}
	pc.BaseContabilID = job.EffectiveBaseContabilID(cfg.BaseContabilID)
	pc.BaseFiscalID = job.EffectiveBaseFiscalID(cfg.BaseFiscalID)

	if err := checkBaseTypes(ctx, pc); err != nil {
		return err
	}

	if err := store.UpdateJobStage(ctx, job.ID, domain.StagePreparando, "Preparando índices", 5); err != nil {
		return err
	}
	if err := pipeline.EnsureIndexes(ctx, pc, logger); err != nil {
		return err
	}

	orch := pipeline.NewReconciliationPipeline()
	pc.ReportStage = func(ctx context.Context, code, label string, index, total int) error {
		return store.UpdateJobStage(ctx, job.ID, code, label, pipeline.ClampProgress(index, total))
	}

	return orch.Run(ctx, pc)
}

func checkBaseTypes(ctx context.Context, pc *pipeline.Context) error {
	baseA, err := pc.GetBase(ctx, pc.BaseContabilID)
	if err != nil {
		return err
	}
	if baseA.Tipo != domain.BaseTypeContabil {
		return &domain.ConfigurationError{Msg: "base A override is not a CONTABIL base", Err: domain.ErrBaseTypeMismatch}
	}
	baseB, err := pc.GetBase(ctx, pc.BaseFiscalID)
	if err != nil {
		return err
	}
	if baseB.Tipo != domain.BaseTypeFiscal {
		return &domain.ConfigurationError{Msg: "base B override is not a FISCAL base", Err: domain.ErrBaseTypeMismatch}
	}
	return nil
}
