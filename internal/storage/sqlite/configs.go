package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/igorribeiro98/al-tool/internal/domain"
)

// GetConfigConciliacao loads the matching contract, accepting both the
// sequence-of-strings shorthand (interpreted as {"CHAVE_1": [...]}) and the
// full mapping form for chaves_contabil/chaves_fiscal, per §6.
func (s *Store) GetConfigConciliacao(ctx context.Context, id int64) (domain.ConfigConciliacao, []string, error) {
	var (
		c                                   domain.ConfigConciliacao
		chavesContabilRaw, chavesFiscalRaw  string
		chavesOrderRaw                      string
		inverter                            int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, base_contabil_id, base_fiscal_id, chaves_contabil, chaves_fiscal,
		       chaves_order, coluna_conciliacao_contabil, coluna_conciliacao_fiscal,
		       inverter_sinal_fiscal, limite_diferenca_imaterial
		FROM config_conciliacao WHERE id = ?`, id,
	).Scan(&c.ID, &c.BaseContabilID, &c.BaseFiscalID, &chavesContabilRaw, &chavesFiscalRaw,
		&chavesOrderRaw, &c.ColunaConciliacaoContabil, &c.ColunaConciliacaoFiscal,
		&inverter, &c.LimiteDiferencaImaterial)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ConfigConciliacao{}, nil, fmt.Errorf("%w: config_conciliacao %d", domain.ErrConfigNotFound, id)
	}
	if err != nil {
		return domain.ConfigConciliacao{}, nil, &domain.StorageError{Op: "GetConfigConciliacao", Err: err}
	}

	c.InverterSinalFiscal = inverter != 0

	c.ChavesContabil, err = parseKeyColumns(chavesContabilRaw)
	if err != nil {
		return domain.ConfigConciliacao{}, nil, &domain.ConfigurationError{Msg: "chaves_contabil", Err: err}
	}
	c.ChavesFiscal, err = parseKeyColumns(chavesFiscalRaw)
	if err != nil {
		return domain.ConfigConciliacao{}, nil, &domain.ConfigurationError{Msg: "chaves_fiscal", Err: err}
	}

	var order []string
	if chavesOrderRaw != "" {
		_ = json.Unmarshal([]byte(chavesOrderRaw), &order)
	}

	return c, order, nil
}

// parseKeyColumns accepts either `["COL1","COL2"]` (shorthand for
// {"CHAVE_1": ["COL1","COL2"]}) or `{"CHAVE_1": [...], "CHAVE_2": [...]}`.
func parseKeyColumns(raw string) (domain.KeyColumns, error) {
	if raw == "" {
		return domain.KeyColumns{}, nil
	}

	var asMap map[string][]string
	if err := json.Unmarshal([]byte(raw), &asMap); err == nil {
		return domain.KeyColumns(asMap), nil
	}

	var asSeq []string
	if err := json.Unmarshal([]byte(raw), &asSeq); err == nil {
		return domain.KeyColumns{"CHAVE_1": asSeq}, nil
	}

	return nil, fmt.Errorf("chaves value is neither a column sequence nor a key-identifier mapping: %q", raw)
}

// GetConfigEstorno loads the estorno pair-cancellation rule.
func (s *Store) GetConfigEstorno(ctx context.Context, id int64) (domain.ConfigEstorno, error) {
	var c domain.ConfigEstorno
	err := s.db.QueryRowContext(ctx, `
		SELECT id, base_id, coluna_a, coluna_b, coluna_soma, limite_zero
		FROM config_estorno WHERE id = ?`, id,
	).Scan(&c.ID, &c.BaseID, &c.ColunaA, &c.ColunaB, &c.ColunaSoma, &c.LimiteZero)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ConfigEstorno{}, fmt.Errorf("%w: config_estorno %d", domain.ErrConfigNotFound, id)
	}
	if err != nil {
		return domain.ConfigEstorno{}, &domain.StorageError{Op: "GetConfigEstorno", Err: err}
	}
	return c, nil
}

// GetConfigCancelamento loads the row-exclusion rule.
func (s *Store) GetConfigCancelamento(ctx context.Context, id int64) (domain.ConfigCancelamento, error) {
	var c domain.ConfigCancelamento
	err := s.db.QueryRowContext(ctx, `
		SELECT id, base_id, coluna_indicador, valor_cancelado, valor_nao_cancelado
		FROM config_cancelamento WHERE id = ?`, id,
	).Scan(&c.ID, &c.BaseID, &c.ColunaIndicador, &c.ValorCancelado, &c.ValorNaoCancelado)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ConfigCancelamento{}, fmt.Errorf("%w: config_cancelamento %d", domain.ErrConfigNotFound, id)
	}
	if err != nil {
		return domain.ConfigCancelamento{}, &domain.StorageError{Op: "GetConfigCancelamento", Err: err}
	}
	return c, nil
}
