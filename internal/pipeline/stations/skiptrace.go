package stations

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/linkpellow/chimera-core/internal/domain"
	"github.com/linkpellow/chimera-core/internal/queue"
)

// skipTraceProvider names the fixed fallback provider mission target the
// skip-tracing station submits against, distinct from the GPS-selected
// scraper provider.
const skipTraceProvider = "skip_trace"

// SkipTraceFallback runs when the scraper enrichment station left phone
// unfilled. It submits a mission against the fixed skip-trace provider
// and FAILs when that mission still returns no phone, per spec.md §4.1.
type SkipTraceFallback struct {
	Queue         MissionSubmitter
	BlueprintFor  func(provider string) (*domain.Blueprint, bool)
	ResultTimeout time.Duration
}

// Contract implements Station.
func (SkipTraceFallback) Contract() domain.StationContract {
	return domain.StationContract{
		Name:            "skip_tracing_fallback",
		RequiredInputs:  set("firstName", "lastName", "city", "state"),
		ProducesOutputs: set("phone", "email"),
		CostEstimate:    0.15,
	}
}

// ShouldSkip implements pipeline.Skippable: the fallback never runs when
// the scraper station already produced a phone number.
func (SkipTraceFallback) ShouldSkip(pctx *domain.PipelineContext) (bool, string) {
	phone, ok := pctx.Data["phone"].(string)
	return ok && phone != "", "phone already present"
}

// Process implements Station.
func (s SkipTraceFallback) Process(ctx context.Context, pctx *domain.PipelineContext) (map[string]any, domain.StopCondition, error) {
	if s.Queue == nil {
		return nil, domain.Fail, domain.NewEnrichmentError("skip_tracing_fallback", "no skip-trace queue configured")
	}

	var blueprint *domain.Blueprint
	if s.BlueprintFor != nil {
		if bp, ok := s.BlueprintFor(skipTraceProvider); ok {
			blueprint = bp
		}
	}

	lead := leadFromContext(pctx)
	missionID := uuid.NewString()
	env := queue.MissionEnvelope{
		MissionID:      missionID,
		Lead:           lead,
		TargetProvider: skipTraceProvider,
		Blueprint:      blueprint,
	}
	if err := s.Queue.Enqueue(ctx, env); err != nil {
		return nil, domain.Fail, domain.NewEnrichmentError("skip_tracing_fallback", "enqueue mission: "+err.Error())
	}

	timeout := s.ResultTimeout
	if timeout <= 0 {
		timeout = defaultResultTimeout
	}
	result, err := s.Queue.AwaitResult(ctx, missionID, timeout)
	if err != nil || result == nil {
		return nil, domain.Fail, domain.NewEnrichmentError("skip_tracing_fallback", "no result from skip-trace mission")
	}

	phone, ok := result.Extracted["phone"]
	if !ok || phone == "" {
		return nil, domain.Fail, domain.NewEnrichmentError("skip_tracing_fallback", "skip-trace returned no phone")
	}

	fields := map[string]any{"phone": phone}
	if email, ok := result.Extracted["email"]; ok {
		fields["email"] = email
	}
	return fields, domain.Continue, nil
}
