package sqlite

import (
	"context"
	"database/sql"

	"github.com/igorribeiro98/al-tool/internal/domain"
)

// InsertMark records a status/grupo classification for a row, ignoring the
// call if the same (base_id, row_id, grupo) triple was already marked.
// That uniqueness constraint is what makes re-running a pipeline step on
// the same job idempotent (I5).
func (s *Store) InsertMark(ctx context.Context, m domain.Mark) error {
	return withRetry(ctx, "InsertMark", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO conciliacao_marks (base_id, row_id, status, grupo, chave)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (base_id, row_id, grupo) DO NOTHING`,
			m.BaseID, m.RowID, m.Status, m.Grupo, m.Chave,
		)
		return err
	})
}

// InsertMarksTx is the bulk counterpart of InsertMark, used by pipeline
// steps that mark many rows inside a single transaction.
func InsertMarksTx(ctx context.Context, tx *sql.Tx, marks []domain.Mark) error {
	if len(marks) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO conciliacao_marks (base_id, row_id, status, grupo, chave)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (base_id, row_id, grupo) DO NOTHING`)
	if err != nil {
		return &domain.StorageError{Op: "InsertMarksTx.Prepare", Err: err}
	}
	defer stmt.Close()

	for _, m := range marks {
		if _, err := stmt.ExecContext(ctx, m.BaseID, m.RowID, m.Status, m.Grupo, m.Chave); err != nil {
			return &domain.StorageError{Op: "InsertMarksTx.Exec", Err: err}
		}
	}
	return nil
}

// MarksByBase loads every mark recorded for a base, keyed by row id. A row
// can carry more than one grupo (e.g. both an estorno mark and a
// cancelamento mark when both rules target the same base), so each row id
// maps to a slice.
func (s *Store) MarksByBase(ctx context.Context, baseID int64) (map[int64][]domain.Mark, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, base_id, row_id, status, grupo, chave
		FROM conciliacao_marks WHERE base_id = ?`, baseID)
	if err != nil {
		return nil, &domain.StorageError{Op: "MarksByBase", Err: err}
	}
	defer rows.Close()

	out := make(map[int64][]domain.Mark)
	for rows.Next() {
		var m domain.Mark
		var chave sql.NullString
		if err := rows.Scan(&m.ID, &m.BaseID, &m.RowID, &m.Status, &m.Grupo, &chave); err != nil {
			return nil, &domain.StorageError{Op: "MarksByBase.Scan", Err: err}
		}
		if chave.Valid {
			v := chave.String
			m.Chave = &v
		}
		out[m.RowID] = append(out[m.RowID], m)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "MarksByBase.Rows", Err: err}
	}
	return out, nil
}

// RowIDsMarkedWithGrupo returns the set of row ids on baseID already
// carrying grupo, used by steps that must skip rows a previous run already
// classified (e.g. a row already paired off as an estorno).
func (s *Store) RowIDsMarkedWithGrupo(ctx context.Context, baseID int64, grupo string) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT row_id FROM conciliacao_marks WHERE base_id = ? AND grupo = ?`, baseID, grupo)
	if err != nil {
		return nil, &domain.StorageError{Op: "RowIDsMarkedWithGrupo", Err: err}
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, &domain.StorageError{Op: "RowIDsMarkedWithGrupo.Scan", Err: err}
		}
		out[id] = true
	}
	return out, rows.Err()
}
