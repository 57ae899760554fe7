package config

import (
	"fmt"
	"runtime"

	"github.com/igorribeiro98/al-tool/internal/env"
)

// PipelineConfig tunes the Parallel Group Processor used inside the
// Conciliação-AB step, §4.10/§6.
type PipelineConfig struct {
	ConciliacaoThreshold int `env:"WORKER_CONCILIACAO_THRESHOLD"`
	ConciliacaoPoolSize  int `env:"WORKER_CONCILIACAO_POOL_SIZE"`
	ConciliacaoBatchSize int `env:"WORKER_CONCILIACAO_BATCH_SIZE"`
}

// LoadPipelineConfig loads PipelineConfig, applying §6 defaults.
func LoadPipelineConfig() (PipelineConfig, error) {
	cfg := PipelineConfig{}
	if err := env.Load(&cfg); err != nil {
		return PipelineConfig{}, fmt.Errorf("load pipeline config: %w", err)
	}

	if cfg.ConciliacaoThreshold <= 0 {
		cfg.ConciliacaoThreshold = 500
	}
	if cfg.ConciliacaoPoolSize <= 0 {
		cfg.ConciliacaoPoolSize = max(1, runtime.NumCPU()-1)
	}
	if cfg.ConciliacaoBatchSize <= 0 {
		cfg.ConciliacaoBatchSize = 1000
	}
	return cfg, nil
}
