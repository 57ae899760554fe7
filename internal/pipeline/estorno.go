package pipeline

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/igorribeiro98/al-tool/internal/domain"
	"github.com/igorribeiro98/al-tool/internal/storage/sqlite"
)

// EstornoStep pairs off internal reversals within Base A: two rows where
// one's coluna_a equals the other's coluna_b and the sum of their
// coluna_soma values is within [-limite_zero, +limite_zero] are both marked
// Conciliado/Conciliado_Estorno, so the main matcher never sees them
// (§4.5).
type EstornoStep struct{}

func NewEstornoStep() *EstornoStep { return &EstornoStep{} }

func (s *EstornoStep) Name() string  { return "EstornoBaseA" }
func (s *EstornoStep) Code() string  { return domain.StageEstornoBaseA }
func (s *EstornoStep) Label() string { return "Aplicando regras de estorno" }

func (s *EstornoStep) Run(ctx context.Context, pc *Context) error {
	if pc.ConfigEstornoID == nil {
		return nil // estorno is optional per job
	}
	cfg, err := pc.GetConfigEstorno(ctx, *pc.ConfigEstornoID)
	if err != nil {
		return err
	}
	base, err := pc.GetBase(ctx, cfg.BaseID)
	if err != nil {
		return err
	}

	qTable, err := sqlite.QuoteIdentifier(base.TabelaSQLite)
	if err != nil {
		return err
	}
	qColA, err := sqlite.QuoteIdentifier(cfg.ColunaA)
	if err != nil {
		return err
	}
	qColB, err := sqlite.QuoteIdentifier(cfg.ColunaB)
	if err != nil {
		return err
	}
	qColSoma, err := sqlite.QuoteIdentifier(cfg.ColunaSoma)
	if err != nil {
		return err
	}

	already, err := pc.Store.RowIDsMarkedWithGrupo(ctx, base.ID, domain.GrupoConciliadoEstorno)
	if err != nil {
		return err
	}

	candidateSQL := fmt.Sprintf(`
		SELECT a.rowid, b.rowid, CAST(a.%s AS TEXT), a.%s, b.%s
		FROM %s a
		JOIN %s b ON a.%s = b.%s AND a.rowid != b.rowid
		WHERE ABS(a.%s + b.%s) <= ?
		ORDER BY a.rowid ASC, b.rowid ASC`,
		qColA, qColSoma, qColSoma, qTable, qTable, qColA, qColB, qColSoma, qColSoma)

	rows, err := pc.Store.DB().QueryContext(ctx, candidateSQL, cfg.LimiteZero)
	if err != nil {
		return &domain.StorageError{Op: "EstornoStep.candidates", Err: err}
	}

	type pair struct {
		aID, bID int64
		chaveVal string
	}
	var pairs []pair
	for rows.Next() {
		var p pair
		var somaA, somaB float64
		if err := rows.Scan(&p.aID, &p.bID, &p.chaveVal, &somaA, &somaB); err != nil {
			rows.Close()
			return &domain.StorageError{Op: "EstornoStep.scan", Err: err}
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return &domain.StorageError{Op: "EstornoStep.rows", Err: err}
	}
	rows.Close()

	consumed := make(map[int64]bool, len(already)*2)
	for id := range already {
		consumed[id] = true
	}

	var marks []domain.Mark
	for _, p := range pairs {
		if consumed[p.aID] || consumed[p.bID] {
			continue
		}
		consumed[p.aID] = true
		consumed[p.bID] = true

		chave := fmt.Sprintf("%s_%d_%d", p.chaveVal, p.aID, p.bID)
		marks = append(marks,
			domain.Mark{BaseID: base.ID, RowID: p.aID, Status: domain.StatusConciliado, Grupo: domain.GrupoConciliadoEstorno, Chave: &chave},
			domain.Mark{BaseID: base.ID, RowID: p.bID, Status: domain.StatusConciliado, Grupo: domain.GrupoConciliadoEstorno, Chave: &chave},
		)
	}

	if len(marks) == 0 {
		return nil
	}
	return pc.Store.WithTx(ctx, func(tx *sql.Tx) error {
		return sqlite.InsertMarksTx(ctx, tx, marks)
	})
}
