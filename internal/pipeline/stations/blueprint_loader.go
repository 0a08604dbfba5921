package stations

import (
	"context"

	"github.com/linkpellow/chimera-core/internal/domain"
	"github.com/linkpellow/chimera-core/internal/hivemind"
)

// ProviderSelector is the GPS Router's Select method, narrowed to what
// Blueprint Loader needs.
type ProviderSelector interface {
	Select(ctx context.Context, state string, tried map[string]struct{}, preferred string) string
}

// ProviderPredictor is the Hive Mind's pattern-based provider prediction,
// narrowed to what Blueprint Loader needs.
type ProviderPredictor interface {
	PredictProvider(ctx context.Context, lead domain.Lead) (hivemind.PredictProviderResult, bool, error)
}

// BlueprintStore resolves a provider's site-specific instruction list, to
// be implemented against Postgres's site_blueprints table.
type BlueprintStore interface {
	Get(ctx context.Context, providerDomain string) (*domain.Blueprint, bool, error)
}

// BlueprintLoader consults the GPS router (Hive-Mind-shortcut aware) to
// pick a target provider, then fetches that provider's blueprint. It never
// fails: a missing blueprint is reported as a mapping-required alert for
// the scraper station to act on, per spec.md §4.1.
type BlueprintLoader struct {
	Router    ProviderSelector
	Predictor ProviderPredictor
	Store     BlueprintStore
}

// Contract implements Station.
func (BlueprintLoader) Contract() domain.StationContract {
	return domain.StationContract{
		Name:            "blueprint_loader",
		RequiredInputs:  set("linkedinUrl"),
		ProducesOutputs: set(),
		CostEstimate:    0,
	}
}

// Process implements Station.
func (bl BlueprintLoader) Process(ctx context.Context, pctx *domain.PipelineContext) (map[string]any, domain.StopCondition, error) {
	lead := leadFromContext(pctx)

	preferred := ""
	if bl.Predictor != nil {
		if result, ok, err := bl.Predictor.PredictProvider(ctx, lead); err == nil && ok {
			preferred = result.Provider
		}
	}

	provider := ""
	if bl.Router != nil {
		provider = bl.Router.Select(ctx, lead.State, map[string]struct{}{}, preferred)
	}

	fields := map[string]any{"_target_provider": provider}
	if provider == "" || bl.Store == nil {
		fields["_mapping_required"] = true
		return fields, domain.Continue, nil
	}

	blueprint, ok, err := bl.Store.Get(ctx, provider)
	if err != nil || !ok {
		fields["_mapping_required"] = true
		return fields, domain.Continue, nil
	}
	fields["_blueprint"] = blueprint
	return fields, domain.Continue, nil
}

// leadFromContext reconstructs a domain.Lead from the pipeline context's
// accumulated fields, for stations that need the typed view.
func leadFromContext(pctx *domain.PipelineContext) domain.Lead {
	str := func(key string) string {
		v, _ := pctx.Data[key].(string)
		return v
	}
	return domain.Lead{
		LinkedInURL: str("linkedinUrl"),
		Name:        str("name"),
		FirstName:   str("firstName"),
		LastName:    str("lastName"),
		City:        str("city"),
		State:       str("state"),
		ZipCode:     str("zipcode"),
		Employer:    str("company"),
		Title:       str("title"),
	}
}
