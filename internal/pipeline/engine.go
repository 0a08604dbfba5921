// Package pipeline implements the Enrichment Pipeline Engine: a
// contract-based station graph that drives one lead through an ordered
// list of stations under a per-lead cost budget, per spec.md §4.1.
//
// Grounded on other_examples' imagineer enrichment pipeline
// (internal/enrichment/pipeline.go): the sequential stage loop and the
// "log the failure and keep going" graceful-degradation policy are
// carried over unchanged; the dependency-ordered agent stages there
// become a single declared station order here, since spec.md §4.1
// requires in-order execution with no intra-context parallelism.
package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/linkpellow/chimera-core/internal/domain"
)

// Station is one pipeline stage: an immutable contract plus the
// processing function that honors it. Concrete stations are values
// implementing this interface, not a class hierarchy.
type Station interface {
	Contract() domain.StationContract
	Process(ctx context.Context, pctx *domain.PipelineContext) (map[string]any, domain.StopCondition, error)
}

// Skippable is implemented by stations that can decline to run for a
// reason other than missing inputs or exceeded budget — typically because
// the field they would produce is already present. A skipped station is
// neither invoked nor charged its cost estimate.
type Skippable interface {
	ShouldSkip(pctx *domain.PipelineContext) (skip bool, reason string)
}

// Engine drives a fixed, ordered station list through any number of
// concurrent lead contexts; Run is reentrant across goroutines because it
// never mutates shared state beyond the PipelineContext passed to it.
type Engine struct {
	stations []Station
	logger   *zap.Logger
}

// New constructs an Engine over an ordered station list.
func New(stations []Station, logger *zap.Logger) *Engine {
	return &Engine{stations: stations, logger: logger}
}

// nameAliases lists the common name-variant fields that normalize into
// the canonical "name" field before station 1 runs.
var nameAliases = []string{"fullName", "full_name", "Name"}

func normalizeName(data map[string]any) {
	if _, ok := data["name"]; ok {
		return
	}
	for _, alias := range nameAliases {
		if v, ok := data[alias]; ok {
			if s, ok := v.(string); ok && s != "" {
				data["name"] = s
				return
			}
		}
	}
	first, _ := data["firstName"].(string)
	last, _ := data["lastName"].(string)
	if first != "" || last != "" {
		data["name"] = strings.TrimSpace(first + " " + last)
	}
}

// Run executes every station in declared order against pctx, honoring
// the prerequisite check, budget check, invoke, and merge sequence of
// spec.md §4.1. It returns the number of stations actually invoked.
func (e *Engine) Run(ctx context.Context, pctx *domain.PipelineContext) int {
	normalizeName(pctx.Data)

	executed := 0
	for _, station := range e.stations {
		contract := station.Contract()
		started := time.Now()

		// 1. Prerequisite check: missing inputs fail only this station.
		present := pctx.AvailableFields()
		missing := false
		for field := range contract.RequiredInputs {
			if _, ok := present[field]; !ok {
				missing = true
				break
			}
		}
		if missing {
			pctx.Update(nil, contract.Name, 0, domain.Fail, started, "missing_inputs", "")
			continue
		}

		// 2. Budget check: exceeding the ceiling stops the whole pipeline.
		if !pctx.CanAfford(contract.CostEstimate) {
			pctx.Update(nil, contract.Name, 0, domain.SkipRemaining, started, "budget_exceeded", "")
			break
		}

		// A station may decline to run for a reason other than missing
		// inputs or budget (e.g. its output field is already populated).
		// It is neither invoked nor charged its cost estimate.
		if skippable, ok := station.(Skippable); ok {
			if skip, reason := skippable.ShouldSkip(pctx); skip {
				if e.logger != nil {
					e.logger.Debug("station skipped", zap.String("station", contract.Name), zap.String("reason", reason))
				}
				pctx.Update(nil, contract.Name, 0, domain.Continue, started, "", "")
				continue
			}
		}

		executed++
		fields, cond, err := station.Process(ctx, pctx)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("station failed", zap.String("station", contract.Name), zap.Error(err))
			}
			reason, fix := err.Error(), ""
			if ee, ok := domain.AsEnrichmentError(err); ok {
				fix = ee.SuggestedFix
			}
			pctx.Update(fields, contract.Name, contract.CostEstimate, domain.Fail, started, reason, fix)
			continue
		}

		pctx.Update(fields, contract.Name, contract.CostEstimate, cond, started, "", "")
		if cond == domain.SkipRemaining {
			break
		}
	}

	return executed
}
