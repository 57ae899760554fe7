package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/igorribeiro98/al-tool/internal/domain"
	"github.com/igorribeiro98/al-tool/internal/storage/sqlite"
)

// numericTypePattern matches the SQLite column-type affinities treated as
// numeric per §4.4 (case-insensitive).
var numericTypePattern = regexp.MustCompile(`(?i)^(int|real|float|numeric|decimal|number)`)

// identifierColumns are excluded from null normalization: they carry no
// business value and NULL is how "no value yet" is correctly represented
// for the rowid-derived id and the bookkeeping timestamps.
var identifierColumns = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

// NullsStep normalizes NULL/empty-string values on one base's table: 0 for
// numeric columns, the literal "NULL" for textual columns (§4.4). It is
// idempotent — re-running it changes nothing once every column has already
// been normalized (P5).
type NullsStep struct {
	which  domain.BaseType
	baseID func(pc *Context) int64
}

// NewNullsBaseAStep builds the Nulls-A step.
func NewNullsBaseAStep() *NullsStep {
	return &NullsStep{which: domain.BaseTypeContabil, baseID: func(pc *Context) int64 { return pc.BaseContabilID }}
}

// NewNullsBaseBStep builds the Nulls-B step.
func NewNullsBaseBStep() *NullsStep {
	return &NullsStep{which: domain.BaseTypeFiscal, baseID: func(pc *Context) int64 { return pc.BaseFiscalID }}
}

func (s *NullsStep) Name() string {
	if s.which == domain.BaseTypeContabil {
		return "NullsBaseA"
	}
	return "NullsBaseB"
}

func (s *NullsStep) Code() string {
	if s.which == domain.BaseTypeContabil {
		return domain.StageNullsBaseA
	}
	return domain.StageNullsBaseB
}

func (s *NullsStep) Label() string {
	if s.which == domain.BaseTypeContabil {
		return "Normalizando campos da Base Contábil"
	}
	return "Normalizando campos da Base Fiscal"
}

func (s *NullsStep) Run(ctx context.Context, pc *Context) error {
	baseID := s.baseID(pc)
	base, err := pc.GetBase(ctx, baseID)
	if err != nil {
		return err
	}

	cols, err := pc.Store.TableColumns(ctx, base.TabelaSQLite)
	if err != nil {
		return &domain.SchemaError{Msg: fmt.Sprintf("base table %q", base.TabelaSQLite), Hint: "run migrations / re-ingest the base", Err: err}
	}

	return pc.Store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, col := range cols {
			if identifierColumns[col.Name] {
				continue
			}
			setClause, err := nullsSetClause(col)
			if err != nil {
				return err
			}
			if _, err := sqlite.UpdateColumnTx(ctx, tx, base.TabelaSQLite, setClause); err != nil {
				return err
			}
		}
		return nil
	})
}

// nullsSetClause builds the CASE-expression SET clause for one column: 0
// for numeric affinities, the textual literal 'NULL' otherwise.
func nullsSetClause(col sqlite.ColumnInfo) (string, error) {
	q, err := sqlite.QuoteIdentifier(col.Name)
	if err != nil {
		return "", err
	}
	if numericTypePattern.MatchString(col.Type) {
		return fmt.Sprintf(`%s = CASE WHEN %s IS NULL OR %s = '' THEN 0 ELSE %s END`, q, q, q, q), nil
	}
	return fmt.Sprintf(`%s = CASE WHEN %s IS NULL OR %s = '' THEN 'NULL' ELSE %s END`, q, q, q, q), nil
}
