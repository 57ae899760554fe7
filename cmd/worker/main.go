package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/igorribeiro98/al-tool/internal/config"
	"github.com/igorribeiro98/al-tool/internal/infrastructure/observability"
	"github.com/igorribeiro98/al-tool/internal/storage/sqlite"
	"github.com/igorribeiro98/al-tool/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storageCfg, err := config.LoadStorageConfig()
	if err != nil {
		log.Fatalf("load storage config: %v", err)
	}
	workerCfg, err := config.LoadWorkerConfig(runtime.NumCPU())
	if err != nil {
		log.Fatalf("load worker config: %v", err)
	}
	pipelineCfg, err := config.LoadPipelineConfig()
	if err != nil {
		log.Fatalf("load pipeline config: %v", err)
	}
	if !workerCfg.ThreadsEnabled {
		// A single-CPU/low-core host gets no benefit from fanning the
		// group processor out across goroutines — force the synchronous
		// fallback regardless of WORKER_CONCILIACAO_THRESHOLD.
		pipelineCfg.ConciliacaoPoolSize = 1
	}
	obsCfg, err := config.LoadObservabilityConfig()
	if err != nil {
		log.Fatalf("load observability config: %v", err)
	}

	logger, shutdown, err := observability.Setup(ctx, observability.Config{
		Enabled:     obsCfg.OTelEnabled,
		ServiceName: obsCfg.ServiceName,
	})
	if err != nil {
		log.Fatalf("setup observability: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("observability shutdown failed", "error", err)
		}
	}()
	slog.SetDefault(logger)

	store, err := sqlite.Open(ctx, storageCfg.ToSQLiteConfig())
	if err != nil {
		logger.ErrorContext(ctx, "failed to open store", "error", err)
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	w := worker.New(store, pipelineCfg, logger,
		worker.WithPollInterval(workerCfg.PollInterval),
		worker.WithTaskTimeout(workerCfg.TaskTimeout()),
	)

	logger.InfoContext(ctx, "al-tool worker starting")
	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		logger.ErrorContext(ctx, "worker exited abnormally", "error", err)
		log.Fatalf("worker exited: %v", err)
	}
	logger.InfoContext(ctx, "al-tool worker stopped")
}
