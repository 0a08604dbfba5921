package domain

import "time"

// HistoryEntry records one station's execution outcome within a pipeline run.
type HistoryEntry struct {
	Station      string
	StartedAt    time.Time
	DurationMs   int64
	Condition    StopCondition
	Error        string
	SuggestedFix string
}

// PipelineContext is a single lead's journey through the station route: the
// accumulated fields, the running cost, the budget ceiling, and an
// append-only history. Invariants: cost never decreases; a station's
// declared outputs are subset-added to the field set on success; history is
// append-only. Owned exclusively by the engine executing it.
type PipelineContext struct {
	Data        map[string]any
	BudgetLimit float64
	TotalCost   float64
	History     []HistoryEntry
	Errors      []string
}

// NewPipelineContext seeds a context from the initial lead data.
func NewPipelineContext(initial map[string]any, budgetLimit float64) *PipelineContext {
	data := make(map[string]any, len(initial))
	for k, v := range initial {
		data[k] = v
	}
	return &PipelineContext{Data: data, BudgetLimit: budgetLimit}
}

// AvailableFields returns the set of field names currently present with a
// non-nil value.
func (c *PipelineContext) AvailableFields() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Data))
	for k, v := range c.Data {
		if v != nil {
			set[k] = struct{}{}
		}
	}
	return set
}

// CanAfford reports whether spending cost would stay within budget.
func (c *PipelineContext) CanAfford(cost float64) bool {
	return c.TotalCost+cost <= c.BudgetLimit
}

// Update commits a station's output fields and cost, and appends a history
// entry. Cost is debited even when the station's condition is Fail: the
// station has already spent whatever external-service credit it used.
func (c *PipelineContext) Update(fields map[string]any, station string, cost float64, condition StopCondition, started time.Time, errMsg, suggestedFix string) {
	for k, v := range fields {
		c.Data[k] = v
	}
	c.TotalCost += cost
	c.History = append(c.History, HistoryEntry{
		Station:      station,
		StartedAt:    started,
		DurationMs:   time.Since(started).Milliseconds(),
		Condition:    condition,
		Error:        errMsg,
		SuggestedFix: suggestedFix,
	})
	if errMsg != "" {
		c.Errors = append(c.Errors, errMsg)
	}
}

// StationContract is the immutable descriptor a station publishes: name,
// required input fields, produced output fields, and a cost estimate. A
// station is runnable iff required ⊆ present-fields AND cost_so_far +
// cost_estimate ≤ budget.
type StationContract struct {
	Name            string
	RequiredInputs  map[string]struct{}
	ProducesOutputs map[string]struct{}
	CostEstimate    float64
}

// Runnable reports whether a station's prerequisites and budget allow it to
// execute against the given context.
func (s StationContract) Runnable(ctx *PipelineContext) bool {
	present := ctx.AvailableFields()
	for field := range s.RequiredInputs {
		if _, ok := present[field]; !ok {
			return false
		}
	}
	return ctx.CanAfford(s.CostEstimate)
}
