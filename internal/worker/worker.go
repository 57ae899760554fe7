// Package worker implements the queue poller: it claims PENDING jobs one
// at a time and hands each to jobrunner, on a fixed ticker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/igorribeiro98/al-tool/internal/config"
	"github.com/igorribeiro98/al-tool/internal/domain"
	"github.com/igorribeiro98/al-tool/internal/jobrunner"
	"github.com/igorribeiro98/al-tool/internal/storage/sqlite"
)

// Worker polls for PENDING jobs and runs them one at a time against a
// single store connection. Only one job runs at a time per Worker instance
// — the store's single-writer policy makes running more pointless anyway.
type Worker struct {
	store        *sqlite.Store
	pipelineCfg  config.PipelineConfig
	logger       *slog.Logger
	instanceID   string
	pollInterval time.Duration
	taskTimeout  time.Duration
	done         chan struct{}
	wg           sync.WaitGroup
}

// Option configures a Worker.
type Option func(*Worker)

// WithPollInterval overrides the default poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) { w.pollInterval = d }
}

// WithTaskTimeout overrides the per-job timeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(w *Worker) { w.taskTimeout = d }
}

// New builds a Worker with a random instance id (hostname-uuid), used to
// tag log lines and the "starting_worker" stage label so an operator can
// tell which process picked up a job.
func New(store *sqlite.Store, pipelineCfg config.PipelineConfig, logger *slog.Logger, opts ...Option) *Worker {
	host, _ := os.Hostname()
	w := &Worker{
		store:        store,
		pipelineCfg:  pipelineCfg,
		logger:       logger,
		instanceID:   fmt.Sprintf("%s-%s", host, uuid.NewString()),
		pollInterval: 5 * time.Second,
		taskTimeout:  5 * time.Minute,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs the poll loop until ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "worker started", "instance_id", w.instanceID, "poll_interval", w.pollInterval)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.wg.Add(1)
			func() {
				defer w.wg.Done()
				if _, err := w.RunPollOnce(ctx); err != nil {
					w.logger.ErrorContext(ctx, "poll cycle failed", "error", err)
				}
			}()
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "worker context cancelled, shutting down")
			w.wg.Wait()
			return ctx.Err()
		case <-w.done:
			w.logger.InfoContext(ctx, "worker stopped")
			w.wg.Wait()
			return nil
		}
	}
}

// Stop signals Start's loop to exit gracefully.
func (w *Worker) Stop() {
	close(w.done)
}

// RunPollOnce claims and runs at most one job. It returns (true, nil) if a
// job was claimed and ran to a terminal state (DONE or FAILED — both count
// as "processed", since jobrunner.Run records the failure on the job row
// itself), (false, nil) if the queue was empty, and a non-nil error only
// when even that bookkeeping failed.
func (w *Worker) RunPollOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextPendingJob(ctx, w.instanceID)
	if errors.Is(err, domain.ErrJobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim next job: %w", err)
	}

	w.logger.InfoContext(ctx, "claimed job", "job_id", job.ID, "instance_id", w.instanceID)

	runCtx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	defer cancel()

	if err := jobrunner.Run(runCtx, w.store, w.pipelineCfg, w.logger, job.ID); err != nil {
		return true, fmt.Errorf("run job %d: %w", job.ID, err)
	}
	return true, nil
}
