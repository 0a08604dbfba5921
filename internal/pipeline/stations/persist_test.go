package stations

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linkpellow/chimera-core/internal/domain"
)

type stubLeadPersister struct {
	leadID string
	err    error
}

func (s stubLeadPersister) Upsert(ctx context.Context, record LeadRecord) (string, error) {
	return s.leadID, s.err
}

func TestPersist_SuccessfulUpsertContinues(t *testing.T) {
	station := Persist{Store: stubLeadPersister{leadID: "lead-123"}}
	pctx := domain.NewPipelineContext(map[string]any{"linkedinUrl": "u1", "phone": "+13055550100"}, 10)

	fields, cond, err := station.Process(context.Background(), pctx)

	assert.NoError(t, err)
	assert.Equal(t, domain.Continue, cond)
	assert.Equal(t, true, fields["saved"])
	assert.Equal(t, "lead-123", fields["lead_id"])
}

func TestPersist_StoreErrorFails(t *testing.T) {
	station := Persist{Store: stubLeadPersister{err: errors.New("connection refused")}}
	pctx := domain.NewPipelineContext(map[string]any{"linkedinUrl": "u1"}, 10)

	fields, cond, err := station.Process(context.Background(), pctx)

	assert.Error(t, err)
	assert.Equal(t, domain.Fail, cond)
	assert.Equal(t, false, fields["saved"])
}

func TestPersist_NoStoreConfiguredFails(t *testing.T) {
	station := Persist{}
	pctx := domain.NewPipelineContext(map[string]any{"linkedinUrl": "u1"}, 10)

	_, cond, err := station.Process(context.Background(), pctx)

	assert.Error(t, err)
	assert.Equal(t, domain.Fail, cond)
}
