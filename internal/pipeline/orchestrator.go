package pipeline

import (
	"context"
	"fmt"
	"math"
)

// Step is one ordered pipeline stage. Code/Label are the values written to
// jobs.pipeline_stage / jobs.pipeline_stage_label when the step starts
// (§4.8's stage table).
type Step interface {
	Name() string
	Code() string
	Label() string
	Run(ctx context.Context, pc *Context) error
}

// Orchestrator runs a fixed, ordered list of steps against one Context.
// Steps never run in parallel: correctness depends on ordering (Nulls
// before Estorno/Cancelamento, both before Conciliação-AB).
type Orchestrator struct {
	Steps []Step
}

// New builds an Orchestrator from an arbitrary step list, in caller order.
func New(steps ...Step) *Orchestrator {
	return &Orchestrator{Steps: steps}
}

// NewReconciliationPipeline builds the five mandated stages in their fixed
// order: each base is null-normalized before its exclusion rule runs
// (Nulls-A before Estorno-A, Nulls-B before Cancelamento-B), and both
// exclusion rules run before the matcher ever sees a row (§4.4-§4.7).
func NewReconciliationPipeline() *Orchestrator {
	return New(
		NewNullsBaseAStep(),
		NewEstornoStep(),
		NewNullsBaseBStep(),
		NewCancelamentoStep(),
		NewConciliacaoStep(),
	)
}

// Run executes every step in order, reporting stage progress before each
// one starts and aborting on the first error.
func (o *Orchestrator) Run(ctx context.Context, pc *Context) error {
	total := len(o.Steps)
	for i, step := range o.Steps {
		if pc.ReportStage != nil {
			if err := pc.ReportStage(ctx, step.Code(), step.Label(), i, total); err != nil {
				return fmt.Errorf("pipeline: report stage %q: %w", step.Name(), err)
			}
		}
		if err := step.Run(ctx, pc); err != nil {
			return fmt.Errorf("pipeline: step %q: %w", step.Name(), err)
		}
	}
	return nil
}

// clampProgress mirrors §4.8's clamp(round((i/N)*100), 10, 99) formula,
// exposed so jobrunner's ReportStage implementation doesn't have to
// re-derive it.
func clampProgress(i, total int) int {
	if total == 0 {
		return 10
	}
	p := int(math.Round(float64(i) / float64(total) * 100.0))
	if p < 10 {
		p = 10
	}
	if p > 99 {
		p = 99
	}
	return p
}

// ClampProgress exposes clampProgress to other packages (jobrunner).
func ClampProgress(i, total int) int { return clampProgress(i, total) }
