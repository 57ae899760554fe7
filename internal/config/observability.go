package config

import (
	"fmt"

	"github.com/igorribeiro98/al-tool/internal/env"
)

// ObservabilityConfig controls whether logs are bridged through OpenTelemetry.
type ObservabilityConfig struct {
	OTelEnabled bool   `env:"OTEL_ENABLED"`
	ServiceName string `env:"OTEL_SERVICE_NAME"`
}

// LoadObservabilityConfig loads ObservabilityConfig from the environment.
func LoadObservabilityConfig() (ObservabilityConfig, error) {
	cfg := ObservabilityConfig{}
	if err := env.Load(&cfg); err != nil {
		return ObservabilityConfig{}, fmt.Errorf("load observability config: %w", err)
	}
	return cfg, nil
}
