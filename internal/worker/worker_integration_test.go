//go:build integration

package worker

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/linkpellow/chimera-core/internal/domain"
	"github.com/linkpellow/chimera-core/internal/queue"
)

type stubEntropyAllocator struct{}

func (stubEntropyAllocator) Allocate(ctx context.Context, workerID, missionID string) (domain.HardwareEntropySeeds, error) {
	return domain.HardwareEntropySeeds{WorkerID: workerID, MissionID: missionID, GPUSeed: 1, AudioSeed: 2, CanvasSeed: 3}, nil
}

func TestPool_RunMission_CompletesSimpleBlueprint(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `<html><body><input id="q"><button id="go">Search</button></body></html>`)
	}))
	defer ts.Close()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	q := queue.New(client, queue.DefaultConfig(), nil)

	cfg := Config{PoolSize: 1, Headless: true, ViewportWidth: 1280, ViewportHeight: 800, MissionTimeout: 30 * time.Second}
	pool := New(cfg, q, nil, nil, nil, stubEntropyAllocator{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, pool.Start(ctx))
	defer pool.Shutdown(ctx)

	env := queue.MissionEnvelope{
		MissionID:      "mission-1",
		TargetProvider: "test-provider",
		Lead:           domain.Lead{Name: "Jane Doe", State: "TX"},
		Blueprint: &domain.Blueprint{
			Domain: "example.test",
			Steps: []domain.BlueprintStep{
				{Type: domain.StepGoto, URL: ts.URL},
				{Type: domain.StepInput, Selector: "#q", Value: "hi"},
				{Type: domain.StepClick, Selector: "#go", Intent: "submit search"},
			},
		},
	}
	require.NoError(t, q.Enqueue(ctx, env))

	w := newWorker("worker-0", pool)
	mctx, mcancel := context.WithTimeout(ctx, 20*time.Second)
	defer mcancel()

	claimed, err := q.Dequeue(mctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	result := w.runMission(mctx, claimed)
	require.Equal(t, domain.MissionCompleted, result.Status)
}
