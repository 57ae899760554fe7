package domain

import "fmt"

// Validate checks the structural invariants of a reconciliation config.
// Per Open Question (a), mismatched key arities are rejected here rather
// than silently tolerated by the matcher's defensive fallback.
func (c ConfigConciliacao) Validate() error {
	if c.ColunaConciliacaoContabil == "" || c.ColunaConciliacaoFiscal == "" {
		return &ConfigurationError{Msg: "coluna_conciliacao_contabil and coluna_conciliacao_fiscal are required"}
	}
	if c.LimiteDiferencaImaterial < 0 {
		return &ConfigurationError{Msg: "limite_diferenca_imaterial must be non-negative"}
	}

	seen := make(map[string]bool, len(c.ChavesContabil)+len(c.ChavesFiscal))
	for k := range c.ChavesContabil {
		seen[k] = true
	}
	for k := range c.ChavesFiscal {
		seen[k] = true
	}

	for k := range seen {
		a, hasA := c.ChavesContabil[k]
		b, hasB := c.ChavesFiscal[k]
		if !hasA || !hasB {
			// A key identifier present on only one side has no join partner;
			// the matcher simply never produces a group for it (empty-list
			// skip in §4.7 step 3). Not an error.
			continue
		}
		if len(a) != len(b) {
			return &ConfigurationError{Msg: fmt.Sprintf("%s has %d columns on base A, %d on base B", k, len(a), len(b)), Err: ErrKeyArityMismatch}
		}
	}
	return nil
}

// Validate checks the structural invariants of an estorno config.
func (c ConfigEstorno) Validate() error {
	if c.ColunaA == "" || c.ColunaB == "" || c.ColunaSoma == "" {
		return &ConfigurationError{Msg: "coluna_a, coluna_b, and coluna_soma are required"}
	}
	if c.LimiteZero < 0 {
		return &ConfigurationError{Msg: "limite_zero must be non-negative"}
	}
	return nil
}

// Validate checks the structural invariants of a cancelamento config.
func (c ConfigCancelamento) Validate() error {
	if c.ColunaIndicador == "" {
		return &ConfigurationError{Msg: "coluna_indicador is required"}
	}
	return nil
}
