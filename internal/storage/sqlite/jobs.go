package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/igorribeiro98/al-tool/internal/domain"
)

// CreateJob inserts a new PENDING job and returns its id.
func (s *Store) CreateJob(ctx context.Context, j domain.Job) (int64, error) {
	var id int64
	err := withRetry(ctx, "CreateJob", func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO jobs (nome, status, config_conciliacao_id, config_estorno_id,
			                   config_cancelamento_id, base_contabil_id_override,
			                   base_fiscal_id_override, pipeline_stage, pipeline_stage_label)
			VALUES (?, 'PENDING', ?, ?, ?, ?, ?, ?, ?)`,
			j.Nome, j.ConfigConciliacaoID, j.ConfigEstornoID, j.ConfigCancelamentoID,
			j.BaseContabilIDOverride, j.BaseFiscalIDOverride, domain.StageQueued, "Na fila")
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetJob loads a job by id.
func (s *Store) GetJob(ctx context.Context, id int64) (domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, nome, status, config_conciliacao_id, config_estorno_id,
		       config_cancelamento_id, base_contabil_id_override, base_fiscal_id_override,
		       pipeline_stage, pipeline_progress, pipeline_stage_label, erro,
		       arquivo_exportado, export_status, export_progress,
		       created_at, updated_at, started_at, finished_at
		FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, fmt.Errorf("%w: job %d", domain.ErrJobNotFound, id)
	}
	if err != nil {
		return domain.Job{}, &domain.StorageError{Op: "GetJob", Err: err}
	}
	return j, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.Job, error) {
	var (
		j                   domain.Job
		status              string
		startedAt, finished sql.NullString
		createdAt, updated  string
	)
	err := row.Scan(&j.ID, &j.Nome, &status, &j.ConfigConciliacaoID, &j.ConfigEstornoID,
		&j.ConfigCancelamentoID, &j.BaseContabilIDOverride, &j.BaseFiscalIDOverride,
		&j.PipelineStage, &j.PipelineProgress, &j.PipelineStageLabel, &j.Erro,
		&j.ArquivoExportado, &j.ExportStatus, &j.ExportProgress,
		&createdAt, &updated, &startedAt, &finished)
	if err != nil {
		return domain.Job{}, err
	}
	j.Status = domain.JobStatus(status)
	j.CreatedAt = parseTimestamp(createdAt)
	j.UpdatedAt = parseTimestamp(updated)
	if startedAt.Valid {
		t := parseTimestamp(startedAt.String)
		j.StartedAt = &t
	}
	if finished.Valid {
		t := parseTimestamp(finished.String)
		j.FinishedAt = &t
	}
	return j, nil
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02T15:04:05.000Z", time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ClaimNextPendingJob atomically moves the oldest PENDING job to RUNNING and
// returns it. It returns domain.ErrJobNotFound (wrapped) when the queue is
// empty, which callers should treat as "nothing to do right now" rather than
// a failure.
func (s *Store) ClaimNextPendingJob(ctx context.Context, workerID string) (domain.Job, error) {
	var job domain.Job
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM jobs WHERE status = 'PENDING' ORDER BY id ASC LIMIT 1`,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrJobNotFound
		}
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE jobs
			SET status = 'RUNNING', pipeline_stage = ?, pipeline_stage_label = ?,
			    started_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now'),
			    updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
			WHERE id = ? AND status = 'PENDING'`,
			domain.StageStartingWorker, "Iniciando worker "+workerID, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			// Another worker claimed it between the SELECT and the UPDATE.
			return domain.ErrJobNotFound
		}

		row := tx.QueryRowContext(ctx, `
			SELECT id, nome, status, config_conciliacao_id, config_estorno_id,
			       config_cancelamento_id, base_contabil_id_override, base_fiscal_id_override,
			       pipeline_stage, pipeline_progress, pipeline_stage_label, erro,
			       arquivo_exportado, export_status, export_progress,
			       created_at, updated_at, started_at, finished_at
			FROM jobs WHERE id = ?`, id)
		job, err = scanJob(row)
		return err
	})
	if errors.Is(err, domain.ErrJobNotFound) {
		return domain.Job{}, err
	}
	if err != nil {
		return domain.Job{}, &domain.StorageError{Op: "ClaimNextPendingJob", Err: err, Retryable: isRetryableStorageError(err)}
	}
	return job, nil
}

// UpdateJobStage advances a running job's stage, label and progress, per
// the stage table in §4.8.
func (s *Store) UpdateJobStage(ctx context.Context, jobID int64, stage, label string, progress int) error {
	return withRetry(ctx, "UpdateJobStage", func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE jobs
			SET pipeline_stage = ?, pipeline_stage_label = ?, pipeline_progress = ?,
			    updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
			WHERE id = ?`, stage, label, progress, jobID)
		return err
	})
}

// FinishJobSuccess marks a job DONE at 100% progress.
func (s *Store) FinishJobSuccess(ctx context.Context, jobID int64) error {
	return withRetry(ctx, "FinishJobSuccess", func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE jobs
			SET status = 'DONE', pipeline_stage = ?, pipeline_stage_label = ?, pipeline_progress = 100,
			    finished_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now'),
			    updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
			WHERE id = ?`, domain.StageFinalizando, "Concluído", jobID)
		return err
	})
}

// FinishJobFailure marks a job FAILED and records the error message.
func (s *Store) FinishJobFailure(ctx context.Context, jobID int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return withRetry(ctx, "FinishJobFailure", func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE jobs
			SET status = 'FAILED', pipeline_stage = ?, pipeline_stage_label = ?, erro = ?,
			    finished_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now'),
			    updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
			WHERE id = ?`, domain.StageFailed, "Conciliação interrompida", msg, jobID)
		return err
	})
}
