package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/igorribeiro98/al-tool/internal/domain"
)

// ColumnInfo mirrors one row of `PRAGMA table_info(<table>)`.
type ColumnInfo struct {
	Name    string
	Type    string
	NotNull bool
	PK      bool
}

// TableColumns introspects a dynamic base/result table's schema. Every
// pipeline step that needs to know what columns exist on a given base table
// goes through this instead of hardcoding column lists.
func (s *Store) TableColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	q, err := QuoteIdentifier(table)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", q))
	if err != nil {
		return nil, &domain.StorageError{Op: "TableColumns", Err: err}
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			dfltValue  sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &pk); err != nil {
			return nil, &domain.StorageError{Op: "TableColumns.Scan", Err: err}
		}
		cols = append(cols, ColumnInfo{Name: name, Type: typ, NotNull: notNull != 0, PK: pk != 0})
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "TableColumns.Rows", Err: err}
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: table %q has no columns (does it exist?)", domain.ErrSchemaMissing, table)
	}
	return cols, nil
}

// HasColumn reports whether table has a column named name (case-sensitive,
// matching SQLite's default behavior for quoted identifiers).
func (s *Store) HasColumn(ctx context.Context, table, name string) (bool, error) {
	cols, err := s.TableColumns(ctx, table)
	if err != nil {
		return false, err
	}
	for _, c := range cols {
		if c.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// RowVisitor is called once per row read by StreamRows. rowID is the
// table's rowid (SQLite's implicit integer primary key, used throughout the
// pipeline to reference a row without depending on its business columns).
// values maps column name to its driver-native scanned value (string, int64,
// float64, []byte, or nil).
type RowVisitor func(rowID int64, values map[string]any) error

// StreamRows reads every row of table in rowid order and invokes visit for
// each one, without materializing the whole table in memory. The pipeline
// steps do not use it: they work through set-based UPDATE/SELECT statements
// and FetchRowsByID.
func (s *Store) StreamRows(ctx context.Context, table string, visit RowVisitor) error {
	cols, err := s.TableColumns(ctx, table)
	if err != nil {
		return err
	}
	q, err := QuoteIdentifier(table)
	if err != nil {
		return err
	}

	colList := "rowid"
	for _, c := range cols {
		qc, err := QuoteIdentifier(c.Name)
		if err != nil {
			return err
		}
		colList += ", " + qc
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", colList, q))
	if err != nil {
		return &domain.StorageError{Op: "StreamRows", Err: err}
	}
	defer rows.Close()

	dest := make([]any, len(cols)+1)
	ptrs := make([]any, len(cols)+1)
	for i := range dest {
		ptrs[i] = &dest[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return &domain.StorageError{Op: "StreamRows.Scan", Err: err}
		}
		rowID, _ := dest[0].(int64)
		values := make(map[string]any, len(cols))
		for i, c := range cols {
			values[c.Name] = dest[i+1]
		}
		if err := visit(rowID, values); err != nil {
			return err
		}
	}
	return rows.Err()
}

// FetchRowsByID loads the given columns (plus rowid) for a specific set of
// rows, used by the Conciliação-AB step to hydrate join hits without
// streaming the whole base table. Returns nothing for ids that don't exist.
func (s *Store) FetchRowsByID(ctx context.Context, table string, rowIDs []int64, columns []string) (map[int64]map[string]any, error) {
	out := make(map[int64]map[string]any, len(rowIDs))
	if len(rowIDs) == 0 {
		return out, nil
	}

	q, err := QuoteIdentifier(table)
	if err != nil {
		return nil, err
	}

	colList := ""
	for _, c := range columns {
		qc, err := QuoteIdentifier(c)
		if err != nil {
			return nil, err
		}
		colList += ", " + qc
	}

	const batchSize = 500
	for start := 0; start < len(rowIDs); start += batchSize {
		end := min(start+batchSize, len(rowIDs))
		batch := rowIDs[start:end]

		placeholders := ""
		args := make([]any, len(batch))
		for i, id := range batch {
			if i > 0 {
				placeholders += ", "
			}
			placeholders += "?"
			args[i] = id
		}

		stmt := fmt.Sprintf("SELECT rowid%s FROM %s WHERE rowid IN (%s)", colList, q, placeholders)
		rows, err := s.db.QueryContext(ctx, stmt, args...)
		if err != nil {
			return nil, &domain.StorageError{Op: "FetchRowsByID", Err: err}
		}

		dest := make([]any, len(columns)+1)
		ptrs := make([]any, len(columns)+1)
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		for rows.Next() {
			if err := rows.Scan(ptrs...); err != nil {
				rows.Close()
				return nil, &domain.StorageError{Op: "FetchRowsByID.Scan", Err: err}
			}
			id, _ := dest[0].(int64)
			values := make(map[string]any, len(columns))
			for i, c := range columns {
				values[c] = dest[i+1]
			}
			out[id] = values
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, &domain.StorageError{Op: "FetchRowsByID.Rows", Err: err}
		}
		rows.Close()
	}
	return out, nil
}

// AllRowIDs returns every rowid in table, in ascending order.
func (s *Store) AllRowIDs(ctx context.Context, table string) ([]int64, error) {
	q, err := QuoteIdentifier(table)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT rowid FROM %s ORDER BY rowid", q))
	if err != nil {
		return nil, &domain.StorageError{Op: "AllRowIDs", Err: err}
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, &domain.StorageError{Op: "AllRowIDs.Scan", Err: err}
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateColumnTx applies a single CASE-expression style UPDATE to table
// inside tx, used by the nulls-normalization steps. setClause is the full SET
// clause body (e.g. `"col" = CASE WHEN "col" IS NULL THEN 0 ELSE "col" END`)
// built by the caller with already-quoted identifiers.
func UpdateColumnTx(ctx context.Context, tx *sql.Tx, table, setClause string) (int64, error) {
	q, err := QuoteIdentifier(table)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s", q, setClause))
	if err != nil {
		return 0, &domain.StorageError{Op: "UpdateColumnTx", Err: err}
	}
	return res.RowsAffected()
}
