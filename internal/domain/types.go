// Package domain holds the core value types shared by the storage layer,
// the pipeline steps, the job runner, and the worker. Nothing in this
// package talks to SQLite directly.
package domain

import "time"

// BaseType distinguishes the accounting ("Base A") side of a reconciliation
// from the fiscal ("Base B") side.
type BaseType string

const (
	BaseTypeContabil BaseType = "CONTABIL"
	BaseTypeFiscal   BaseType = "FISCAL"
)

// Base is the metadata row for one ingested dataset. The physical data
// lives in a dynamically named table (TabelaSQLite, typically "base_<ID>").
type Base struct {
	ID           int64
	Nome         string
	Tipo         BaseType
	TabelaSQLite string
	Subtype      string
}

// JobStatus is the lifecycle status of a Job. It never reverts once it
// reaches DONE or FAILED.
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusDone    JobStatus = "DONE"
	JobStatusFailed  JobStatus = "FAILED"
)

// Recognized pipeline stage codes (§4.8 and §6 of the closed set), plus the
// worker/job-lifecycle codes that bookend a run.
const (
	StageQueued           = "queued"
	StageStartingWorker   = "starting_worker"
	StagePreparando       = "preparando"
	StageNullsBaseA       = "normalizando_base_a"
	StageEstornoBaseA     = "aplicando_estorno"
	StageNullsBaseB       = "normalizando_base_b"
	StageCancelamentoB    = "aplicando_cancelamento"
	StageConciliacaoAB    = "conciliando"
	StageFinalizando      = "finalizando"
	StageFailed           = "failed"
)

// Job is one reconciliation request, claimed by exactly one Worker and run
// by exactly one Job Runner invocation.
type Job struct {
	ID                     int64
	Nome                   string
	Status                 JobStatus
	ConfigConciliacaoID    int64
	ConfigEstornoID        *int64
	ConfigCancelamentoID   *int64
	BaseContabilIDOverride *int64
	BaseFiscalIDOverride   *int64
	PipelineStage          string
	PipelineProgress       int
	PipelineStageLabel     string
	Erro                   string
	ArquivoExportado       string
	ExportStatus           string
	ExportProgress         int
	CreatedAt              time.Time
	UpdatedAt              time.Time
	StartedAt              *time.Time
	FinishedAt             *time.Time
}

// EffectiveBaseContabilID resolves the Base A id the job actually uses,
// honoring a per-job override over the config's default.
func (j Job) EffectiveBaseContabilID(configDefault int64) int64 {
	if j.BaseContabilIDOverride != nil {
		return *j.BaseContabilIDOverride
	}
	return configDefault
}

// EffectiveBaseFiscalID resolves the Base B id the job actually uses.
func (j Job) EffectiveBaseFiscalID(configDefault int64) int64 {
	if j.BaseFiscalIDOverride != nil {
		return *j.BaseFiscalIDOverride
	}
	return configDefault
}

// KeyColumns maps a key identifier (e.g. "CHAVE_1") to its ordered list of
// column names on one side of a reconciliation.
type KeyColumns map[string][]string

// ConfigConciliacao is the matching contract between a Base A and a Base B.
type ConfigConciliacao struct {
	ID                        int64
	BaseContabilID             int64
	BaseFiscalID               int64
	ChavesContabil              KeyColumns
	ChavesFiscal                KeyColumns
	ColunaConciliacaoContabil   string
	ColunaConciliacaoFiscal     string
	InverterSinalFiscal         bool
	LimiteDiferencaImaterial    float64
}

// OrderedKeyIdentifiers returns the key identifiers in the insertion order
// mandated by §4.7: the union of ChavesContabil and ChavesFiscal keys, with
// ChavesContabil's own order preserved first and any fiscal-only keys
// appended afterward in their own insertion order.
//
// Go maps don't preserve insertion order, so the caller-visible order is
// reconstructed from an explicit order slice recorded at config-load time.
// When that slice is empty, the union is collected from the two maps
// instead (contabil keys, then fiscal-only keys), and the order within each
// map is not defined.
func (c ConfigConciliacao) OrderedKeyIdentifiers(order []string) []string {
	if len(order) > 0 {
		return order
	}
	seen := make(map[string]bool, len(c.ChavesContabil)+len(c.ChavesFiscal))
	var out []string
	for k := range c.ChavesContabil {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for k := range c.ChavesFiscal {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// ConfigEstorno is the pair-cancellation rule applied to Base A.
type ConfigEstorno struct {
	ID         int64
	BaseID     int64
	ColunaA    string
	ColunaB    string
	ColunaSoma string
	LimiteZero float64
}

// ConfigCancelamento is the row-exclusion rule applied to Base B.
type ConfigCancelamento struct {
	ID                int64
	BaseID            int64
	ColunaIndicador   string
	ValorCancelado    string
	ValorNaoCancelado string
}

// Result status labels, the closed set from §3 (I4).
const (
	StatusConciliado          = "01_Conciliado"
	StatusEncontradoDiferenca = "02_Encontrado c/Diferença"
	StatusNaoEncontrado       = "03_Não Encontrado"
	StatusNaoAvaliado         = "04_Não avaliado"
)

// Group labels used across marks and result rows (§4.6, §4.7).
const (
	GrupoConciliadoEstorno = "Conciliado_Estorno"
	GrupoNFCancelada       = "NF Cancelada"
	GrupoConciliado        = "Conciliado"
	GrupoDiferencaImaterial = "Diferença Imaterial"
	GrupoBaseAMaior        = "Encontrado com diferença, BASE A MAIOR"
	GrupoBaseBMaior        = "Encontrado com diferença, BASE B MAIOR"
	GrupoNaoEncontrado     = "Não encontrado"
)

// Mark is a pre-reconciliation decision attached to a base row. At most one
// mark may exist per (BaseID, RowID, Grupo) — see I5.
type Mark struct {
	ID        int64
	BaseID    int64
	RowID     int64
	Status    string
	Grupo     string
	Chave     *string
	CreatedAt time.Time
}

// ResultRow is one row of a job's conciliacao_result_<jobId> table.
type ResultRow struct {
	ID         int64
	JobID      int64
	Chave      *string
	Status     string
	Grupo      string
	ARowID     *int64
	BRowID     *int64
	AValues    *string // JSON snapshot
	BValues    *string // JSON snapshot
	ValueA     float64
	ValueB     float64
	Difference float64
	// KeyValues maps key identifier -> this row's composite key value for
	// that identifier (one nullable textual column per configured key).
	KeyValues map[string]string
	CreatedAt time.Time
}
