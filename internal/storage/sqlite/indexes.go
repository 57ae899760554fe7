package sqlite

import (
	"context"
	"fmt"
)

// CreateIndexIfNotExists creates a single-column index on table, used by
// the index advisor to speed up the matcher's joins and the estorno/
// cancelamento filter queries on cold base tables.
func (s *Store) CreateIndexIfNotExists(ctx context.Context, indexName, table, column string) error {
	qIdx, err := QuoteIdentifier(indexName)
	if err != nil {
		return err
	}
	qTable, err := QuoteIdentifier(table)
	if err != nil {
		return err
	}
	qCol, err := QuoteIdentifier(column)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", qIdx, qTable, qCol)
	return withRetry(ctx, "CreateIndexIfNotExists", func() error {
		_, err := s.db.ExecContext(ctx, stmt)
		return err
	})
}

// Analyze runs SQLite's ANALYZE so the query planner has fresh statistics
// for the new indexes before the matcher starts joining.
func (s *Store) Analyze(ctx context.Context) error {
	return withRetry(ctx, "Analyze", func() error {
		_, err := s.db.ExecContext(ctx, "ANALYZE")
		return err
	})
}
