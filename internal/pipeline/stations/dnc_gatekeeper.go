package stations

import (
	"context"

	"github.com/linkpellow/chimera-core/internal/domain"
)

// DNCResult is the outcome of a Do-Not-Call registry lookup.
type DNCResult struct {
	Status     string
	CanContact bool
}

// DNCChecker scrubs a phone number against a Do-Not-Call registry. The
// concrete implementation calls an external compliance API.
type DNCChecker interface {
	Check(ctx context.Context, phone string) (DNCResult, error)
}

// DNCGatekeeper SKIP_REMAINING's the pipeline the moment a lead turns out
// to be on the Do-Not-Call registry, before the more expensive demographics
// and persistence stations run.
type DNCGatekeeper struct {
	Checker DNCChecker
}

// Contract implements Station.
func (DNCGatekeeper) Contract() domain.StationContract {
	return domain.StationContract{
		Name:            "dnc_gatekeeper",
		RequiredInputs:  set("phone"),
		ProducesOutputs: set("dnc_status", "can_contact"),
		CostEstimate:    0.02,
	}
}

// Process implements Station.
func (dg DNCGatekeeper) Process(ctx context.Context, pctx *domain.PipelineContext) (map[string]any, domain.StopCondition, error) {
	phone, _ := pctx.Data["phone"].(string)
	if phone == "" {
		return nil, domain.Fail, domain.NewEnrichmentError("dnc_gatekeeper", "no phone to scrub")
	}

	if dg.Checker == nil {
		return map[string]any{"dnc_status": "UNKNOWN", "can_contact": true}, domain.Continue, nil
	}

	result, err := dg.Checker.Check(ctx, phone)
	if err != nil {
		// Fail open: a DNC outage must not block every lead behind it.
		return map[string]any{"dnc_status": "UNKNOWN", "can_contact": true}, domain.Continue, nil
	}

	fields := map[string]any{"dnc_status": result.Status, "can_contact": result.CanContact}
	if !result.CanContact {
		return fields, domain.SkipRemaining, nil
	}
	return fields, domain.Continue, nil
}
