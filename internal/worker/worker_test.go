package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linkpellow/chimera-core/internal/domain"
	"github.com/linkpellow/chimera-core/internal/queue"
	"github.com/linkpellow/chimera-core/internal/selector"
)

func TestIsForbiddenStatus(t *testing.T) {
	assert.True(t, isForbiddenStatus(forbiddenStatusErr{errors.New("blocked")}))
	assert.False(t, isForbiddenStatus(errors.New("plain")))
}

func TestCSSInjectionSnippet_WrapsStyleTag(t *testing.T) {
	snippet := cssInjectionSnippet("body { color: red; }")
	assert.Contains(t, snippet, "createElement('style')")
	assert.Contains(t, snippet, "color: red")
	assert.Contains(t, snippet, "DOMContentLoaded")
}

func TestFailure_SetsMissionFailedStatus(t *testing.T) {
	w := &Worker{id: "worker-0"}
	env := &queue.MissionEnvelope{TargetProvider: "acme"}
	result := w.failure(context.Background(), env, "boom")
	assert.Equal(t, "boom", result.TraumaSignals[0])
	assert.Equal(t, "acme", result.Provider)
	assert.Equal(t, domain.MissionFailed, result.Status)
}

func TestFailure_SetsMissionTimedOutOnExpiredContext(t *testing.T) {
	w := &Worker{id: "worker-0"}
	env := &queue.MissionEnvelope{TargetProvider: "acme"}
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()
	result := w.failure(ctx, env, "boom")
	assert.Equal(t, domain.MissionTimedOut, result.Status)
	assert.Contains(t, result.TraumaSignals, traumaTimeout)
}

func TestIsHoneypotBlocked(t *testing.T) {
	assert.True(t, isHoneypotBlocked(honeypotBlockedErr{errors.New("blocked")}))
	assert.False(t, isHoneypotBlocked(errors.New("plain")))
}

type stubSelectorResolver struct {
	resolved string
	alert    *selector.CriticalAlert
	err      error
	recorded []string
}

func (s *stubSelectorResolver) Resolve(_ context.Context, domainName, intent string, _ float64) (string, *selector.CriticalAlert, error) {
	return s.resolved, s.alert, s.err
}

func (s *stubSelectorResolver) RecordSuccess(_ context.Context, domainName, intent string) error {
	s.recorded = append(s.recorded, domainName+":"+intent)
	return nil
}

func TestResolveSelector_FallsBackWithNoResolver(t *testing.T) {
	w := &Worker{pool: &Pool{}}
	step := domain.BlueprintStep{Selector: "#submit", Intent: "submit_form"}
	assert.Equal(t, "#submit", w.resolveSelector(context.Background(), "example.com", step))
}

func TestResolveSelector_FallsBackWithoutIntent(t *testing.T) {
	resolver := &stubSelectorResolver{resolved: "#new-submit"}
	w := &Worker{pool: &Pool{selectors: resolver}}
	step := domain.BlueprintStep{Selector: "#submit"}
	assert.Equal(t, "#submit", w.resolveSelector(context.Background(), "example.com", step))
}

func TestResolveSelector_UsesRegistryResult(t *testing.T) {
	resolver := &stubSelectorResolver{resolved: "#new-submit"}
	w := &Worker{pool: &Pool{selectors: resolver}}
	step := domain.BlueprintStep{Selector: "#submit", Intent: "submit_form"}
	assert.Equal(t, "#new-submit", w.resolveSelector(context.Background(), "example.com", step))
}

func TestResolveSelector_FallsBackOnRegistryError(t *testing.T) {
	resolver := &stubSelectorResolver{err: errors.New("redis down")}
	w := &Worker{pool: &Pool{selectors: resolver}}
	step := domain.BlueprintStep{Selector: "#submit", Intent: "submit_form"}
	assert.Equal(t, "#submit", w.resolveSelector(context.Background(), "example.com", step))
}
