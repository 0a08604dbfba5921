package selector

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkpellow/chimera-core/internal/domain"
)

func newTestRegistry(t *testing.T, finder Finder) *Registry {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, finder)
}

type stubFinder struct {
	selector   string
	kind       domain.SelectorKind
	confidence float64
	err        error
}

func (s stubFinder) FindSelector(context.Context, string, string) (string, domain.SelectorKind, float64, error) {
	return s.selector, s.kind, s.confidence, s.err
}

func TestRegistry_ResolveUsesStoredSelectorWhenHealthy(t *testing.T) {
	reg := newTestRegistry(t, stubFinder{})
	ctx := context.Background()

	require.NoError(t, reg.save(ctx, domain.SelectorRecord{
		Domain: "example.com", Intent: "phone", Selector: "#phone", Kind: domain.SelectorCSS,
		Confidence: 0.9,
	}))

	got, alert, err := reg.Resolve(ctx, "example.com", "phone", 0.95)
	require.NoError(t, err)
	assert.Nil(t, alert)
	assert.Equal(t, "#phone", got)
}

func TestRegistry_ResolveRemapsOnLowConfidence(t *testing.T) {
	reg := newTestRegistry(t, stubFinder{selector: "#new-phone", kind: domain.SelectorCSS, confidence: 0.8})
	ctx := context.Background()

	require.NoError(t, reg.save(ctx, domain.SelectorRecord{
		Domain: "example.com", Intent: "phone", Selector: "#phone", Kind: domain.SelectorCSS,
	}))

	got, alert, err := reg.Resolve(ctx, "example.com", "phone", 0.4)
	require.NoError(t, err)
	assert.Nil(t, alert)
	assert.Equal(t, "#new-phone", got)

	rec, ok, err := reg.Lookup(ctx, "example.com", "phone")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, rec.ConsecutiveFailures)
}

func TestRegistry_ResolveRemapsAfterThreeFailures(t *testing.T) {
	reg := newTestRegistry(t, stubFinder{selector: "#new-phone", kind: domain.SelectorCSS, confidence: 0.9})
	ctx := context.Background()

	require.NoError(t, reg.save(ctx, domain.SelectorRecord{
		Domain: "example.com", Intent: "phone", Selector: "#phone", Kind: domain.SelectorCSS,
		Confidence: 0.9, ConsecutiveFailures: 3,
	}))

	got, alert, err := reg.Resolve(ctx, "example.com", "phone", 0.95)
	require.NoError(t, err)
	assert.Nil(t, alert)
	assert.Equal(t, "#new-phone", got)
}

func TestRegistry_RejectsUniversalFallback(t *testing.T) {
	reg := newTestRegistry(t, stubFinder{selector: "*", kind: domain.SelectorCSS, confidence: 0})
	ctx := context.Background()

	_, alert, err := reg.Resolve(ctx, "example.com", "phone", 0.2)
	require.NoError(t, err)
	assert.Nil(t, alert)

	rec, ok, err := reg.Lookup(ctx, "example.com", "phone")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, rec.ConsecutiveFailures)
	assert.NotEqual(t, "*", rec.Selector)
}

func TestRegistry_CriticalAlertAfterThreeRecoveryFailures(t *testing.T) {
	reg := newTestRegistry(t, stubFinder{selector: "*", kind: domain.SelectorCSS, confidence: 0})
	ctx := context.Background()

	var alert *CriticalAlert
	for i := 0; i < 3; i++ {
		_, a, err := reg.Resolve(ctx, "example.com", "phone", 0.1)
		require.NoError(t, err)
		alert = a
	}
	require.NotNil(t, alert)
	assert.Equal(t, "example.com", alert.Domain)
	assert.Equal(t, "phone", alert.Intent)
}

func TestRegistry_RecordSuccessResetsFailures(t *testing.T) {
	reg := newTestRegistry(t, stubFinder{})
	ctx := context.Background()

	require.NoError(t, reg.save(ctx, domain.SelectorRecord{
		Domain: "example.com", Intent: "phone", Selector: "#phone", Kind: domain.SelectorCSS,
		ConsecutiveFailures: 2,
	}))
	require.NoError(t, reg.RecordSuccess(ctx, "example.com", "phone"))

	rec, ok, err := reg.Lookup(ctx, "example.com", "phone")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, rec.ConsecutiveFailures)
}
