// Package pipeline implements the five ordered reconciliation stages
// (Nulls-A, Estorno-A, Nulls-B, Cancelamento-B, Conciliação-AB) and the
// orchestrator that runs them in fixed order against a shared, memoized
// execution context.
package pipeline

import (
	"context"
	"sync"

	"github.com/igorribeiro98/al-tool/internal/config"
	"github.com/igorribeiro98/al-tool/internal/domain"
	"github.com/igorribeiro98/al-tool/internal/storage/sqlite"
)

// ReportStageFunc publishes pipeline progress. The orchestrator calls it
// once before each step runs.
type ReportStageFunc func(ctx context.Context, code, label string, index, total int) error

// Context is the shared execution context threaded through every pipeline
// step. Config/base lookups are memoized: the first call per id hits the
// store, subsequent calls within the same job run return the cached value —
// mirroring the source's closures-over-a-cache pattern (§9).
type Context struct {
	Store *sqlite.Store

	JobID                int64
	ConfigConciliacaoID  int64
	ConfigEstornoID      *int64
	ConfigCancelamentoID *int64
	BaseContabilID       int64
	BaseFiscalID         int64

	PipelineCfg config.PipelineConfig
	ReportStage ReportStageFunc

	mu                sync.Mutex
	bases             map[int64]domain.Base
	configConciliacao map[int64]configConciliacaoEntry
	configEstorno     map[int64]domain.ConfigEstorno
	configCancel      map[int64]domain.ConfigCancelamento
}

type configConciliacaoEntry struct {
	cfg   domain.ConfigConciliacao
	order []string
}

// NewContext builds a Context ready for a fresh job run.
func NewContext(store *sqlite.Store, jobID int64) *Context {
	return &Context{
		Store:             store,
		JobID:             jobID,
		bases:             make(map[int64]domain.Base),
		configConciliacao: make(map[int64]configConciliacaoEntry),
		configEstorno:     make(map[int64]domain.ConfigEstorno),
		configCancel:      make(map[int64]domain.ConfigCancelamento),
	}
}

// GetBase returns base metadata for id, fetching and caching on first use.
func (c *Context) GetBase(ctx context.Context, id int64) (domain.Base, error) {
	c.mu.Lock()
	if b, ok := c.bases[id]; ok {
		c.mu.Unlock()
		return b, nil
	}
	c.mu.Unlock()

	b, err := c.Store.GetBase(ctx, id)
	if err != nil {
		return domain.Base{}, err
	}

	c.mu.Lock()
	c.bases[id] = b
	c.mu.Unlock()
	return b, nil
}

// GetConfigConciliacao returns the matching contract and its ordered key
// identifier list, fetching and caching on first use.
func (c *Context) GetConfigConciliacao(ctx context.Context, id int64) (domain.ConfigConciliacao, []string, error) {
	c.mu.Lock()
	if e, ok := c.configConciliacao[id]; ok {
		c.mu.Unlock()
		return e.cfg, e.order, nil
	}
	c.mu.Unlock()

	cfg, order, err := c.Store.GetConfigConciliacao(ctx, id)
	if err != nil {
		return domain.ConfigConciliacao{}, nil, err
	}
	order = cfg.OrderedKeyIdentifiers(order)

	c.mu.Lock()
	c.configConciliacao[id] = configConciliacaoEntry{cfg: cfg, order: order}
	c.mu.Unlock()
	return cfg, order, nil
}

// GetConfigEstorno returns the estorno rule for id, fetching and caching on
// first use.
func (c *Context) GetConfigEstorno(ctx context.Context, id int64) (domain.ConfigEstorno, error) {
	c.mu.Lock()
	if cfg, ok := c.configEstorno[id]; ok {
		c.mu.Unlock()
		return cfg, nil
	}
	c.mu.Unlock()

	cfg, err := c.Store.GetConfigEstorno(ctx, id)
	if err != nil {
		return domain.ConfigEstorno{}, err
	}

	c.mu.Lock()
	c.configEstorno[id] = cfg
	c.mu.Unlock()
	return cfg, nil
}

// GetConfigCancelamento returns the cancellation rule for id, fetching and
// caching on first use.
func (c *Context) GetConfigCancelamento(ctx context.Context, id int64) (domain.ConfigCancelamento, error) {
	c.mu.Lock()
	if cfg, ok := c.configCancel[id]; ok {
		c.mu.Unlock()
		return cfg, nil
	}
	c.mu.Unlock()

	cfg, err := c.Store.GetConfigCancelamento(ctx, id)
	if err != nil {
		return domain.ConfigCancelamento{}, err
	}

	c.mu.Lock()
	c.configCancel[id] = cfg
	c.mu.Unlock()
	return cfg, nil
}
