package config

import (
	"fmt"

	"github.com/igorribeiro98/al-tool/internal/env"
	"github.com/igorribeiro98/al-tool/internal/storage/sqlite"
)

// StorageConfig carries the SQLite tuning knobs applied once at startup,
// per §6's environment toggles.
type StorageConfig struct {
	Path          string `env:"SQLITE_PATH"`
	JournalMode   string `env:"SQLITE_JOURNAL_MODE"`
	Synchronous   string `env:"SQLITE_SYNCHRONOUS"`
	CacheSize     int    `env:"SQLITE_CACHE_SIZE"`
	TempStore     string `env:"SQLITE_TEMP_STORE"`
	BusyTimeoutMS int    `env:"SQLITE_BUSY_TIMEOUT"`
}

// LoadStorageConfig loads StorageConfig from the environment, filling in
// the §6 defaults for anything left unset.
func LoadStorageConfig() (StorageConfig, error) {
	cfg := StorageConfig{}
	if err := env.Load(&cfg); err != nil {
		return StorageConfig{}, fmt.Errorf("load storage config: %w", err)
	}

	if cfg.Path == "" {
		cfg.Path = "al-tool.db"
	}
	if cfg.JournalMode == "" {
		cfg.JournalMode = "WAL"
	}
	if cfg.Synchronous == "" {
		cfg.Synchronous = "NORMAL"
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = -2000
	}
	if cfg.TempStore == "" {
		cfg.TempStore = "MEMORY"
	}
	if cfg.BusyTimeoutMS == 0 {
		cfg.BusyTimeoutMS = 5000
	}
	return cfg, nil
}

// ToSQLiteConfig converts the environment-loaded config into the shape
// internal/storage/sqlite.Open expects.
func (c StorageConfig) ToSQLiteConfig() sqlite.Config {
	return sqlite.Config{
		Path:          c.Path,
		JournalMode:   c.JournalMode,
		Synchronous:   c.Synchronous,
		CacheSize:     c.CacheSize,
		TempStore:     c.TempStore,
		BusyTimeoutMS: c.BusyTimeoutMS,
	}
}
