package stations

import (
	"context"

	"github.com/linkpellow/chimera-core/internal/domain"
)

// LeadRecord is the golden-record view of a pipeline context at persist
// time: every scalar field the pipeline has accumulated, keyed by the
// same names used in PipelineContext.Data.
type LeadRecord map[string]any

// LeadPersister upserts a golden record keyed by linkedin_url, COALESCE-ing
// each column so an existing non-null value is never overwritten by null.
// The concrete implementation is the Postgres leads table.
type LeadPersister interface {
	Upsert(ctx context.Context, record LeadRecord) (leadID string, err error)
}

// Persist writes the final enriched record to the relational store. It is
// the terminal station: a failure here FAILs the station but the lead's
// in-memory fields are still returned to the caller.
type Persist struct {
	Store LeadPersister
}

// Contract implements Station.
func (Persist) Contract() domain.StationContract {
	return domain.StationContract{
		Name:            "persist",
		RequiredInputs:  set("linkedinUrl"),
		ProducesOutputs: set("saved", "lead_id"),
		CostEstimate:    0,
	}
}

// Process implements Station.
func (p Persist) Process(ctx context.Context, pctx *domain.PipelineContext) (map[string]any, domain.StopCondition, error) {
	if p.Store == nil {
		return nil, domain.Fail, domain.NewEnrichmentError("persist", "no lead store configured").WithSuggestedFix("wire a LeadPersister into the persist station")
	}

	record := make(LeadRecord, len(pctx.Data))
	for k, v := range pctx.Data {
		record[k] = v
	}

	leadID, err := p.Store.Upsert(ctx, record)
	if err != nil {
		return map[string]any{"saved": false}, domain.Fail, domain.NewEnrichmentError("persist", "upsert lead: "+err.Error())
	}

	return map[string]any{"saved": true, "lead_id": leadID}, domain.Continue, nil
}
