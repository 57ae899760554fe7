// Package sqlite is the embedded relational store for the reconciliation
// core: configuration tables, base metadata, base data tables, the shared
// marks table, per-job result tables, and the jobs table. It enforces a
// single-writer policy on the one *sql.DB connection it opens.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Config holds the PRAGMA tuning knobs applied once at startup, loaded
// from the SQLITE_* environment toggles (see internal/config).
type Config struct {
	Path           string
	JournalMode    string // default WAL
	Synchronous    string // default NORMAL
	CacheSize      int    // default -2000
	TempStore      string // default MEMORY
	BusyTimeoutMS  int    // default 5000
}

// DefaultConfig returns the documented defaults from §6 of the spec.
func DefaultConfig(path string) Config {
	return Config{
		Path:          path,
		JournalMode:   "WAL",
		Synchronous:   "NORMAL",
		CacheSize:     -2000,
		TempStore:     "MEMORY",
		BusyTimeoutMS: 5000,
	}
}

// Open opens the embedded store, applies PRAGMA tuning, runs migrations,
// and returns a ready-to-use *Store. The connection pool is pinned to a
// single open connection: SQLite allows only one writer at a time, and
// keeping exactly one connection makes that a structural guarantee rather
// than something every caller has to remember (the same pattern used for
// agent session databases elsewhere in the ecosystem).
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite: path cannot be empty")
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", cfg.Path, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	if err := applyPragmas(ctx, db, cfg); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB, cfg Config) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA journal_mode = %s", orDefault(cfg.JournalMode, "WAL")),
		fmt.Sprintf("PRAGMA synchronous = %s", orDefault(cfg.Synchronous, "NORMAL")),
		fmt.Sprintf("PRAGMA cache_size = %d", orDefaultInt(cfg.CacheSize, -2000)),
		fmt.Sprintf("PRAGMA temp_store = %s", orDefault(cfg.TempStore, "MEMORY")),
		fmt.Sprintf("PRAGMA busy_timeout = %d", orDefaultInt(cfg.BusyTimeoutMS, 5000)),
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("sqlite: apply %q: %w", p, err)
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func runMigrations(db *sql.DB) error {
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	goose.SetBaseFS(embedMigrations)
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Store wraps the single *sql.DB connection and exposes the dynamic-SQL
// helpers the pipeline steps and job repository build on.
type Store struct {
	db *sql.DB
}

// DB returns the underlying connection for callers that need raw access
// (index advisor, tests).
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. Used for every multi-statement write so that
// "at most one concurrent writer" also means "all-or-nothing".
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// PingTimeout is the timeout applied to health-check pings.
const PingTimeout = 5 * time.Second
