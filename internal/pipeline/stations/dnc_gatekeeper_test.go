package stations

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linkpellow/chimera-core/internal/domain"
)

type stubDNCChecker struct {
	result DNCResult
	err    error
}

func (s stubDNCChecker) Check(ctx context.Context, phone string) (DNCResult, error) {
	return s.result, s.err
}

func TestDNCGatekeeper_CanContactContinues(t *testing.T) {
	gate := DNCGatekeeper{Checker: stubDNCChecker{result: DNCResult{Status: "CLEAR", CanContact: true}}}
	pctx := domain.NewPipelineContext(map[string]any{"phone": "+13055550100"}, 10)

	fields, cond, err := gate.Process(context.Background(), pctx)

	assert.NoError(t, err)
	assert.Equal(t, domain.Continue, cond)
	assert.Equal(t, "CLEAR", fields["dnc_status"])
}

func TestDNCGatekeeper_OnListStopsPipeline(t *testing.T) {
	gate := DNCGatekeeper{Checker: stubDNCChecker{result: DNCResult{Status: "LISTED", CanContact: false}}}
	pctx := domain.NewPipelineContext(map[string]any{"phone": "+13055550100"}, 10)

	fields, cond, err := gate.Process(context.Background(), pctx)

	assert.NoError(t, err)
	assert.Equal(t, domain.SkipRemaining, cond)
	assert.Equal(t, false, fields["can_contact"])
}

func TestDNCGatekeeper_CheckerErrorFailsOpen(t *testing.T) {
	gate := DNCGatekeeper{Checker: stubDNCChecker{err: errors.New("timeout")}}
	pctx := domain.NewPipelineContext(map[string]any{"phone": "+13055550100"}, 10)

	fields, cond, err := gate.Process(context.Background(), pctx)

	assert.NoError(t, err)
	assert.Equal(t, domain.Continue, cond)
	assert.Equal(t, true, fields["can_contact"])
}
