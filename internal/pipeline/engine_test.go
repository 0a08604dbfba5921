package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkpellow/chimera-core/internal/domain"
)

type stubStation struct {
	contract domain.StationContract
	fields   map[string]any
	cond     domain.StopCondition
	err      error
	calls    *int
}

func (s stubStation) Contract() domain.StationContract { return s.contract }

func (s stubStation) Process(ctx context.Context, pctx *domain.PipelineContext) (map[string]any, domain.StopCondition, error) {
	if s.calls != nil {
		*s.calls++
	}
	return s.fields, s.cond, s.err
}

type skippableStation struct {
	stubStation
	skip   bool
	reason string
}

func (s skippableStation) ShouldSkip(pctx *domain.PipelineContext) (bool, string) {
	return s.skip, s.reason
}

func TestEngine_RunsStationsInOrderAndMergesFields(t *testing.T) {
	a := stubStation{
		contract: domain.StationContract{Name: "a", RequiredInputs: set(), ProducesOutputs: set("x"), CostEstimate: 0.1},
		fields:   map[string]any{"x": "1"},
		cond:     domain.Continue,
	}
	b := stubStation{
		contract: domain.StationContract{Name: "b", RequiredInputs: set("x"), ProducesOutputs: set("y"), CostEstimate: 0.2},
		fields:   map[string]any{"y": "2"},
		cond:     domain.Continue,
	}

	engine := New([]Station{a, b}, nil)
	pctx := domain.NewPipelineContext(map[string]any{}, 10)

	executed := engine.Run(context.Background(), pctx)

	assert.Equal(t, 2, executed)
	assert.Equal(t, "1", pctx.Data["x"])
	assert.Equal(t, "2", pctx.Data["y"])
	assert.InDelta(t, 0.3, pctx.TotalCost, 0.0001)
	require.Len(t, pctx.History, 2)
	assert.Equal(t, domain.Continue, pctx.History[0].Condition)
}

func TestEngine_MissingPrerequisiteFailsOnlyThatStation(t *testing.T) {
	needsY := stubStation{
		contract: domain.StationContract{Name: "needs_y", RequiredInputs: set("y"), ProducesOutputs: set("z"), CostEstimate: 0.1},
		cond:     domain.Continue,
	}
	after := stubStation{
		contract: domain.StationContract{Name: "after", RequiredInputs: set(), ProducesOutputs: set("w"), CostEstimate: 0},
		fields:   map[string]any{"w": true},
		cond:     domain.Continue,
	}

	engine := New([]Station{needsY, after}, nil)
	pctx := domain.NewPipelineContext(map[string]any{}, 10)

	executed := engine.Run(context.Background(), pctx)

	assert.Equal(t, 1, executed)
	require.Len(t, pctx.History, 2)
	assert.Equal(t, domain.Fail, pctx.History[0].Condition)
	assert.Equal(t, "missing_inputs", pctx.History[0].Error)
	assert.Equal(t, true, pctx.Data["w"])
	assert.InDelta(t, 0, pctx.TotalCost, 0.0001)
}

func TestEngine_BudgetExceededSkipsRemainingStations(t *testing.T) {
	calls := 0
	expensive := stubStation{
		contract: domain.StationContract{Name: "expensive", RequiredInputs: set(), ProducesOutputs: set(), CostEstimate: 5},
		cond:     domain.Continue,
		calls:    &calls,
	}
	neverRuns := stubStation{
		contract: domain.StationContract{Name: "never_runs", RequiredInputs: set(), ProducesOutputs: set(), CostEstimate: 5},
		cond:     domain.Continue,
		calls:    &calls,
	}

	engine := New([]Station{expensive, neverRuns}, nil)
	pctx := domain.NewPipelineContext(map[string]any{}, 5)

	executed := engine.Run(context.Background(), pctx)

	assert.Equal(t, 1, executed)
	assert.Equal(t, 1, calls)
	require.Len(t, pctx.History, 2)
	assert.Equal(t, domain.SkipRemaining, pctx.History[1].Condition)
	assert.Equal(t, "budget_exceeded", pctx.History[1].Error)
}

func TestEngine_SkippableStationIsNeitherInvokedNorCharged(t *testing.T) {
	calls := 0
	skip := skippableStation{
		stubStation: stubStation{
			contract: domain.StationContract{Name: "skip_me", RequiredInputs: set(), ProducesOutputs: set(), CostEstimate: 0.15},
			calls:    &calls,
		},
		skip:   true,
		reason: "already present",
	}

	engine := New([]Station{skip}, nil)
	pctx := domain.NewPipelineContext(map[string]any{}, 10)

	executed := engine.Run(context.Background(), pctx)

	assert.Equal(t, 0, executed)
	assert.Equal(t, 0, calls)
	require.Len(t, pctx.History, 1)
	assert.Equal(t, domain.Continue, pctx.History[0].Condition)
	assert.InDelta(t, 0, pctx.TotalCost, 0.0001)
}

func TestEngine_StationFailureIsNotFatal(t *testing.T) {
	failing := stubStation{
		contract: domain.StationContract{Name: "failing", RequiredInputs: set(), ProducesOutputs: set(), CostEstimate: 0.1},
		cond:     domain.Fail,
		err:      domain.NewEnrichmentError("failing", "boom"),
	}
	after := stubStation{
		contract: domain.StationContract{Name: "after", RequiredInputs: set(), ProducesOutputs: set("done"), CostEstimate: 0},
		fields:   map[string]any{"done": true},
		cond:     domain.Continue,
	}

	engine := New([]Station{failing, after}, nil)
	pctx := domain.NewPipelineContext(map[string]any{}, 10)

	executed := engine.Run(context.Background(), pctx)

	assert.Equal(t, 2, executed)
	assert.Equal(t, true, pctx.Data["done"])
	require.Len(t, pctx.History, 2)
	assert.Equal(t, domain.Fail, pctx.History[0].Condition)
	assert.Equal(t, "[failing] boom", pctx.History[0].Error)
}

func TestEngine_EmptyStationListLeavesRecordUnchanged(t *testing.T) {
	engine := New(nil, nil)
	pctx := domain.NewPipelineContext(map[string]any{"name": "John Doe"}, 10)

	executed := engine.Run(context.Background(), pctx)

	assert.Equal(t, 0, executed)
	assert.Equal(t, "John Doe", pctx.Data["name"])
	assert.Empty(t, pctx.History)
}

func set(fields ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}
