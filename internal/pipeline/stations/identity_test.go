package stations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linkpellow/chimera-core/internal/domain"
)

func TestIdentity_SplitsNameAndPassesThroughFields(t *testing.T) {
	pctx := domain.NewPipelineContext(map[string]any{"name": "John Quincy Doe", "city": "Miami"}, 10)

	fields, cond, err := Identity{}.Process(context.Background(), pctx)

	assert.NoError(t, err)
	assert.Equal(t, domain.Continue, cond)
	assert.Equal(t, "John Quincy", fields["firstName"])
	assert.Equal(t, "Doe", fields["lastName"])
	assert.Equal(t, "Miami", fields["city"])
}

func TestIdentity_SingleWordNameBecomesFirstNameOnly(t *testing.T) {
	pctx := domain.NewPipelineContext(map[string]any{"name": "Madonna"}, 10)

	fields, cond, err := Identity{}.Process(context.Background(), pctx)

	assert.NoError(t, err)
	assert.Equal(t, domain.Continue, cond)
	assert.Equal(t, "Madonna", fields["firstName"])
	assert.Equal(t, "", fields["lastName"])
}

func TestIdentity_EmptyNameFails(t *testing.T) {
	pctx := domain.NewPipelineContext(map[string]any{"name": "   "}, 10)

	_, cond, err := Identity{}.Process(context.Background(), pctx)

	assert.Error(t, err)
	assert.Equal(t, domain.Fail, cond)
}
