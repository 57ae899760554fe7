package pipeline

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/igorribeiro98/al-tool/internal/domain"
	"github.com/igorribeiro98/al-tool/internal/storage/sqlite"
)

// CancelamentoStep marks every Base B row flagged as canceled so the main
// matcher skips it entirely (§4.6).
type CancelamentoStep struct{}

func NewCancelamentoStep() *CancelamentoStep { return &CancelamentoStep{} }

func (s *CancelamentoStep) Name() string  { return "CancelamentoBaseB" }
func (s *CancelamentoStep) Code() string  { return domain.StageCancelamentoB }
func (s *CancelamentoStep) Label() string { return "Aplicando regras de cancelamento" }

func (s *CancelamentoStep) Run(ctx context.Context, pc *Context) error {
	if pc.ConfigCancelamentoID == nil {
		return nil // cancelamento is optional per job
	}
	cfg, err := pc.GetConfigCancelamento(ctx, *pc.ConfigCancelamentoID)
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
	qCol, err := sqlite.QuoteIdentifier(cfg.ColunaIndicador)
	if err != nil {
		return err
	}

	already, err := pc.Store.RowIDsMarkedWithGrupo(ctx, base.ID, domain.GrupoNFCancelada)
	if err != nil {
		return err
	}

	q := fmt.Sprintf(`SELECT rowid FROM %s WHERE %s = ?`, qTable, qCol)
	rows, err := pc.Store.DB().QueryContext(ctx, q, cfg.ValorCancelado)
	if err != nil {
		return &domain.StorageError{Op: "CancelamentoStep.query", Err: err}
	}

	var marks []domain.Mark
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			rows.Close()
			return &domain.StorageError{Op: "CancelamentoStep.scan", Err: err}
		}
		if already[rowID] {
			continue
		}
		marks = append(marks, domain.Mark{
			BaseID: base.ID, RowID: rowID,
			Status: domain.StatusNaoAvaliado, Grupo: domain.GrupoNFCancelada, Chave: nil,
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return &domain.StorageError{Op: "CancelamentoStep.rows", Err: err}
	}
	rows.Close()

	if len(marks) == 0 {
		return nil
	}
	return pc.Store.WithTx(ctx, func(tx *sql.Tx) error {
		return sqlite.InsertMarksTx(ctx, tx, marks)
	})
}
