package stations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/linkpellow/chimera-core/internal/domain"
	"github.com/linkpellow/chimera-core/internal/queue"
)

type stubMissionSubmitter struct {
	enqueueErr error
	result     *queue.ResultEnvelope
	awaitErr   error
}

func (s stubMissionSubmitter) Enqueue(ctx context.Context, env queue.MissionEnvelope) error {
	return s.enqueueErr
}

func (s stubMissionSubmitter) AwaitResult(ctx context.Context, missionID string, timeout time.Duration) (*queue.ResultEnvelope, error) {
	return s.result, s.awaitErr
}

func TestScraperEnrichment_MergesExtractedFields(t *testing.T) {
	station := ScraperEnrichment{
		Queue: stubMissionSubmitter{result: &queue.ResultEnvelope{
			Status:    domain.MissionCompleted,
			Extracted: map[string]string{"phone": "+13055550100"},
		}},
	}
	pctx := domain.NewPipelineContext(map[string]any{
		"firstName": "John", "lastName": "Doe", "city": "Miami", "state": "FL",
		"_target_provider": "acme.com",
		"_blueprint":        &domain.Blueprint{Domain: "acme.com"},
	}, 10)

	fields, cond, err := station.Process(context.Background(), pctx)

	assert.NoError(t, err)
	assert.Equal(t, domain.Continue, cond)
	assert.Equal(t, "+13055550100", fields["phone"])
}

func TestScraperEnrichment_NoTargetProviderContinuesEmpty(t *testing.T) {
	station := ScraperEnrichment{Queue: stubMissionSubmitter{}}
	pctx := domain.NewPipelineContext(map[string]any{"firstName": "John", "lastName": "Doe", "city": "Miami", "state": "FL"}, 10)

	fields, cond, err := station.Process(context.Background(), pctx)

	assert.NoError(t, err)
	assert.Equal(t, domain.Continue, cond)
	assert.Nil(t, fields)
}

func TestScraperEnrichment_EnqueueFailureStillContinues(t *testing.T) {
	station := ScraperEnrichment{Queue: stubMissionSubmitter{enqueueErr: errors.New("redis down")}}
	pctx := domain.NewPipelineContext(map[string]any{
		"firstName": "John", "lastName": "Doe", "city": "Miami", "state": "FL",
		"_target_provider": "acme.com",
		"_blueprint":        &domain.Blueprint{Domain: "acme.com"},
	}, 10)

	fields, cond, err := station.Process(context.Background(), pctx)

	assert.NoError(t, err)
	assert.Equal(t, domain.Continue, cond)
	assert.Nil(t, fields)
}
