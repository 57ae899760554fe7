package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/igorribeiro98/al-tool/internal/env"
)

// WorkerConfig controls the queue poller, §6/§4.9.
type WorkerConfig struct {
	PollInterval   time.Duration `env:"WORKER_POLL_SECONDS" envUnit:"seconds"`
	TaskTimeoutMS  int           `env:"WORKER_TASK_TIMEOUT"`
	ThreadsEnabled bool          `env:"WORKER_THREADS_ENABLED"`
}

// TaskTimeout returns the per-task timeout as a time.Duration.
func (c WorkerConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutMS) * time.Millisecond
}

// LoadWorkerConfig loads WorkerConfig, applying §6 defaults. cpuCount feeds
// the WORKER_THREADS_ENABLED default (enabled when more than 2 CPUs), which
// can still be overridden explicitly via the environment.
func LoadWorkerConfig(cpuCount int) (WorkerConfig, error) {
	cfg := WorkerConfig{}
	if err := env.Load(&cfg); err != nil {
		return WorkerConfig{}, fmt.Errorf("load worker config: %w", err)
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PollInterval < time.Second {
		cfg.PollInterval = time.Second
	}
	if cfg.TaskTimeoutMS <= 0 {
		cfg.TaskTimeoutMS = 300000
	}

	if raw, ok := os.LookupEnv("WORKER_THREADS_ENABLED"); ok {
		if b, err := strconv.ParseBool(raw); err == nil {
			cfg.ThreadsEnabled = b
		}
	} else {
		cfg.ThreadsEnabled = cpuCount > 2
	}
	return cfg, nil
}
