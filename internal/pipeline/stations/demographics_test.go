package stations

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linkpellow/chimera-core/internal/domain"
)

type stubDemographicsProvider struct {
	record DemographicRecord
	err    error
}

func (s stubDemographicsProvider) Lookup(ctx context.Context, zipcode, city, state string) (DemographicRecord, error) {
	return s.record, s.err
}

func TestDemographics_EnrichesFields(t *testing.T) {
	station := Demographics{Provider: stubDemographicsProvider{record: DemographicRecord{Income: 65000, IncomeRange: "50k-75k", Age: 34, Address: "123 Main St"}}}
	pctx := domain.NewPipelineContext(map[string]any{"zipcode": "33101"}, 10)

	fields, cond, err := station.Process(context.Background(), pctx)

	assert.NoError(t, err)
	assert.Equal(t, domain.Continue, cond)
	assert.Equal(t, 65000, fields["income"])
	assert.Equal(t, 34, fields["age"])
}

func TestDemographics_ProviderErrorStillContinues(t *testing.T) {
	station := Demographics{Provider: stubDemographicsProvider{err: errors.New("census api down")}}
	pctx := domain.NewPipelineContext(map[string]any{"zipcode": "33101"}, 10)

	fields, cond, err := station.Process(context.Background(), pctx)

	assert.NoError(t, err)
	assert.Equal(t, domain.Continue, cond)
	assert.Nil(t, fields)
}
