package stations

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linkpellow/chimera-core/internal/domain"
)

func TestSkipTraceFallback_ShouldSkipWhenPhonePresent(t *testing.T) {
	pctx := domain.NewPipelineContext(map[string]any{"phone": "+13055550100"}, 10)

	skip, reason := SkipTraceFallback{}.ShouldSkip(pctx)

	assert.True(t, skip)
	assert.Equal(t, "phone already present", reason)
}

func TestSkipTraceFallback_RunsWhenPhoneMissing(t *testing.T) {
	pctx := domain.NewPipelineContext(map[string]any{}, 10)

	skip, _ := SkipTraceFallback{}.ShouldSkip(pctx)

	assert.False(t, skip)
}
