package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigConciliacaoValidate_ArityMismatch(t *testing.T) {
	cfg := ConfigConciliacao{
		ColunaConciliacaoContabil: "VALOR",
		ColunaConciliacaoFiscal:   "VALOR",
		ChavesContabil:            KeyColumns{"CHAVE_1": {"DOC", "ITEM"}},
		ChavesFiscal:              KeyColumns{"CHAVE_1": {"DOC"}},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyArityMismatch))
}

func TestConfigConciliacaoValidate_OneSidedKeyIsNotAnError(t *testing.T) {
	cfg := ConfigConciliacao{
		ColunaConciliacaoContabil: "VALOR",
		ColunaConciliacaoFiscal:   "VALOR",
		ChavesContabil:            KeyColumns{"CHAVE_1": {"DOC"}, "CHAVE_2": {"NOTA"}},
		ChavesFiscal:              KeyColumns{"CHAVE_1": {"DOC"}},
	}

	assert.NoError(t, cfg.Validate())
}

func TestConfigConciliacaoValidate_NegativeLimite(t *testing.T) {
	cfg := ConfigConciliacao{
		ColunaConciliacaoContabil: "VALOR",
		ColunaConciliacaoFiscal:   "VALOR",
		LimiteDiferencaImaterial:  -1,
	}
	assert.Error(t, cfg.Validate())
}

func TestConfigEstornoValidate(t *testing.T) {
	assert.Error(t, ConfigEstorno{}.Validate())
	assert.NoError(t, ConfigEstorno{ColunaA: "A", ColunaB: "B", ColunaSoma: "V"}.Validate())
}

func TestConfigCancelamentoValidate(t *testing.T) {
	assert.Error(t, ConfigCancelamento{}.Validate())
	assert.NoError(t, ConfigCancelamento{ColunaIndicador: "S"}.Validate())
}
