package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/igorribeiro98/al-tool/internal/domain"
)

// defaultResultInsertChunkSize is the fallback batch size for
// InsertResultRows when the caller doesn't supply one (§6
// WORKER_CONCILIACAO_BATCH_SIZE). Keeping batches small limits how long the
// one writer connection is tied up by a single INSERT burst, so a
// poller-side read (job status lookup) never waits long behind it.
const defaultResultInsertChunkSize = 200

// EnsureResultTable creates conciliacao_result_<jobID> if it doesn't exist
// yet, with one nullable TEXT column per key identifier plus the fixed
// columns every result row carries (§4.7).
func (s *Store) EnsureResultTable(ctx context.Context, jobID int64, keyIdentifiers []string) error {
	table := ResultTableName(jobID)
	q, err := QuoteIdentifier(table)
	if err != nil {
		return err
	}

	keyCols := ""
	for _, k := range keyIdentifiers {
		qk, err := QuoteIdentifier(k)
		if err != nil {
			return err
		}
		keyCols += fmt.Sprintf(", %s TEXT", qk)
	}

	stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chave TEXT,
			status TEXT NOT NULL,
			grupo TEXT NOT NULL,
			a_row_id INTEGER,
			b_row_id INTEGER,
			a_values TEXT,
			b_values TEXT,
			value_a REAL NOT NULL DEFAULT 0,
			value_b REAL NOT NULL DEFAULT 0,
			difference REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ', 'now'))%s
		)`, q, keyCols)

	return withRetry(ctx, "EnsureResultTable", func() error {
		_, err := s.db.ExecContext(ctx, stmt)
		return err
	})
}

// InsertResultRows bulk-inserts rows into conciliacao_result_<jobID> in
// chunks of batchSize (defaultResultInsertChunkSize when batchSize <= 0),
// each chunk its own transaction so a failure partway through only needs
// the remaining chunks retried, not the whole result set.
func (s *Store) InsertResultRows(ctx context.Context, jobID int64, keyIdentifiers []string, rows []domain.ResultRow, batchSize int) error {
	if batchSize <= 0 {
		batchSize = defaultResultInsertChunkSize
	}
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		err := withRetry(ctx, "InsertResultRows", func() error {
			return s.WithTx(ctx, func(tx *sql.Tx) error {
				return insertResultChunk(ctx, tx, jobID, keyIdentifiers, chunk)
			})
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func insertResultChunk(ctx context.Context, tx *sql.Tx, jobID int64, keyIdentifiers []string, rows []domain.ResultRow) error {
	table := ResultTableName(jobID)
	q, err := QuoteIdentifier(table)
	if err != nil {
		return err
	}

	cols := []string{"chave", "status", "grupo", "a_row_id", "b_row_id", "a_values", "b_values", "value_a", "value_b", "difference"}
	placeholders := "?, ?, ?, ?, ?, ?, ?, ?, ?, ?"
	for _, k := range keyIdentifiers {
		qk, err := QuoteIdentifier(k)
		if err != nil {
			return err
		}
		cols = append(cols, qk)
		placeholders += ", ?"
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", q, joinQuoted(cols), placeholders)
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return &domain.StorageError{Op: "insertResultChunk.Prepare", Err: err}
	}
	defer stmt.Close()

	for _, r := range rows {
		args := make([]any, 0, len(cols))
		args = append(args, r.Chave, r.Status, r.Grupo, r.ARowID, r.BRowID, r.AValues, r.BValues, r.ValueA, r.ValueB, r.Difference)
		for _, k := range keyIdentifiers {
			args = append(args, nullableKeyValue(r.KeyValues, k))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return &domain.StorageError{Op: "insertResultChunk.Exec", Err: err}
		}
	}
	return nil
}

func nullableKeyValue(values map[string]string, key string) any {
	if v, ok := values[key]; ok {
		return v
	}
	return nil
}

// joinQuoted joins a slice of already-quoted identifiers; the fixed leading
// entries ("chave", "status", "grupo" etc.) in the cols slice passed by
// insertResultChunk are plain column names needing no further quoting since
// they are hardcoded string literals, not dynamic input.
func joinQuoted(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

// MarshalRowSnapshot serializes a row's column values for storage in
// a_values/b_values, preserving the original base row for audit/export.
func MarshalRowSnapshot(values map[string]any) (string, error) {
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("marshal row snapshot: %w", err)
	}
	return string(b), nil
}
