package stations

import (
	"context"

	"github.com/linkpellow/chimera-core/internal/domain"
)

// DemographicRecord is the output of a census-style lookup keyed by zip
// code: income, an income bracket, an estimated age, and a normalized
// street address where available.
type DemographicRecord struct {
	Income      int
	IncomeRange string
	Age         int
	Address     string
}

// DemographicsProvider resolves census-style demographic data for a zip
// code. The concrete implementation calls an external demographics API.
type DemographicsProvider interface {
	Lookup(ctx context.Context, zipcode, city, state string) (DemographicRecord, error)
}

// Demographics enriches income, age, and address from zip code. It never
// fails the pipeline: this data is supplementary, not gating.
type Demographics struct {
	Provider DemographicsProvider
}

// Contract implements Station.
func (Demographics) Contract() domain.StationContract {
	return domain.StationContract{
		Name:            "demographics",
		RequiredInputs:  set("zipcode"),
		ProducesOutputs: set("income", "income_range", "age", "address"),
		CostEstimate:    0.01,
	}
}

// Process implements Station.
func (d Demographics) Process(ctx context.Context, pctx *domain.PipelineContext) (map[string]any, domain.StopCondition, error) {
	if d.Provider == nil {
		return nil, domain.Continue, nil
	}

	zipcode, _ := pctx.Data["zipcode"].(string)
	city, _ := pctx.Data["city"].(string)
	state, _ := pctx.Data["state"].(string)

	record, err := d.Provider.Lookup(ctx, zipcode, city, state)
	if err != nil {
		return nil, domain.Continue, nil
	}

	fields := map[string]any{"income_range": record.IncomeRange, "address": record.Address}
	if record.Income != 0 {
		fields["income"] = record.Income
	}
	if record.Age != 0 {
		fields["age"] = record.Age
	}
	return fields, domain.Continue, nil
}
