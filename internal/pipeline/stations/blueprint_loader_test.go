package stations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linkpellow/chimera-core/internal/domain"
	"github.com/linkpellow/chimera-core/internal/hivemind"
)

type stubRouter struct{ picked string }

func (s stubRouter) Select(ctx context.Context, state string, tried map[string]struct{}, preferred string) string {
	return s.picked
}

type stubPredictor struct {
	result hivemind.PredictProviderResult
	ok     bool
	err    error
}

func (s stubPredictor) PredictProvider(ctx context.Context, lead domain.Lead) (hivemind.PredictProviderResult, bool, error) {
	return s.result, s.ok, s.err
}

type stubBlueprintStore struct {
	blueprint *domain.Blueprint
	ok        bool
	err       error
}

func (s stubBlueprintStore) Get(ctx context.Context, providerDomain string) (*domain.Blueprint, bool, error) {
	return s.blueprint, s.ok, s.err
}

func TestBlueprintLoader_ResolvesBlueprintForSelectedProvider(t *testing.T) {
	bp := &domain.Blueprint{Domain: "acme.com"}
	loader := BlueprintLoader{
		Router: stubRouter{picked: "acme.com"},
		Store:  stubBlueprintStore{blueprint: bp, ok: true},
	}
	pctx := domain.NewPipelineContext(map[string]any{"linkedinUrl": "u1"}, 10)

	fields, cond, err := loader.Process(context.Background(), pctx)

	assert.NoError(t, err)
	assert.Equal(t, domain.Continue, cond)
	assert.Equal(t, "acme.com", fields["_target_provider"])
	assert.Equal(t, bp, fields["_blueprint"])
	assert.NotContains(t, fields, "_mapping_required")
}

func TestBlueprintLoader_MissingBlueprintFlagsMappingRequired(t *testing.T) {
	loader := BlueprintLoader{
		Router: stubRouter{picked: "unknown.com"},
		Store:  stubBlueprintStore{ok: false},
	}
	pctx := domain.NewPipelineContext(map[string]any{"linkedinUrl": "u1"}, 10)

	fields, cond, err := loader.Process(context.Background(), pctx)

	assert.NoError(t, err)
	assert.Equal(t, domain.Continue, cond)
	assert.Equal(t, true, fields["_mapping_required"])
}

func TestBlueprintLoader_NeverFails(t *testing.T) {
	loader := BlueprintLoader{}
	pctx := domain.NewPipelineContext(map[string]any{"linkedinUrl": "u1"}, 10)

	_, cond, err := loader.Process(context.Background(), pctx)

	assert.NoError(t, err)
	assert.Equal(t, domain.Continue, cond)
}
