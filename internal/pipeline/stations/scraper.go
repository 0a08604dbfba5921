package stations

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/linkpellow/chimera-core/internal/domain"
	"github.com/linkpellow/chimera-core/internal/queue"
)

// MissionSubmitter is the Mission Dispatcher's queue surface, narrowed to
// what a station needs: enqueue a mission and block for its result.
type MissionSubmitter interface {
	Enqueue(ctx context.Context, env queue.MissionEnvelope) error
	AwaitResult(ctx context.Context, missionID string, timeout time.Duration) (*queue.ResultEnvelope, error)
}

// defaultResultTimeout bounds how long a station waits on a mission result
// before treating the attempt as empty, mirroring the worker's own
// default mission wall-clock cap (spec.md §4.2).
const defaultResultTimeout = 120 * time.Second

// ScraperEnrichment submits the lead's resolved blueprint as a mission and
// waits for the worker pool to execute it. Cost is zero: the mission's own
// provider-specific economics are tracked by the Router, not the pipeline
// budget. An empty or failed mission still CONTINUEs, leaving room for the
// skip-tracing fallback.
type ScraperEnrichment struct {
	Queue         MissionSubmitter
	ResultTimeout time.Duration
}

// Contract implements Station.
func (ScraperEnrichment) Contract() domain.StationContract {
	return domain.StationContract{
		Name:            "scraper_enrichment",
		RequiredInputs:  set("firstName", "lastName", "city", "state"),
		ProducesOutputs: set("phone", "age", "income", "address", "email"),
		CostEstimate:    0,
	}
}

// Process implements Station.
func (s ScraperEnrichment) Process(ctx context.Context, pctx *domain.PipelineContext) (map[string]any, domain.StopCondition, error) {
	if s.Queue == nil {
		return nil, domain.Continue, nil
	}

	provider, _ := pctx.Data["_target_provider"].(string)
	blueprint, _ := pctx.Data["_blueprint"].(*domain.Blueprint)
	if provider == "" || blueprint == nil {
		return nil, domain.Continue, nil
	}

	lead := leadFromContext(pctx)
	resolved := blueprint.ResolvePlaceholders(lead)
	missionID := uuid.NewString()

	env := queue.MissionEnvelope{
		MissionID:      missionID,
		Lead:           lead,
		TargetProvider: provider,
		Blueprint:      &resolved,
	}
	if err := s.Queue.Enqueue(ctx, env); err != nil {
		return nil, domain.Continue, nil
	}

	timeout := s.ResultTimeout
	if timeout <= 0 {
		timeout = defaultResultTimeout
	}
	result, err := s.Queue.AwaitResult(ctx, missionID, timeout)
	if err != nil || result == nil {
		return nil, domain.Continue, nil
	}

	fields := make(map[string]any, len(result.Extracted))
	for k, v := range result.Extracted {
		fields[k] = v
	}
	return fields, domain.Continue, nil
}
