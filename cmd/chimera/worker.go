package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linkpellow/chimera-core/internal/domain"
	"github.com/linkpellow/chimera-core/internal/guard"
	"github.com/linkpellow/chimera-core/internal/httpapi"
	"github.com/linkpellow/chimera-core/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Worker Runtime (Body): browser pool executing blueprint missions",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	redisClient, err := newRedisClient(cfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	store, err := storageForCmd(ctx)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	hm, err := newHiveMind(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open hive mind: %w", err)
	}
	defer hm.Close()

	visionCli := newVisionClient(cfg, logger)

	mangleEngine, err := newMangleEngine()
	if err != nil {
		return err
	}
	guardian := guard.New(mangleEngine, visionCli)

	mq := newMissionQueueForCmd(redisClient)

	var entropy worker.EntropyAllocator
	if store != nil {
		entropy = store
	} else {
		entropy = noopEntropyAllocator{}
	}

	poolCfg := worker.Config{
		PoolSize:         cfg.Worker.PoolSize,
		Headless:         cfg.Worker.Headless,
		ViewportWidth:    cfg.Worker.ViewportWidth,
		ViewportHeight:   cfg.Worker.ViewportHeight,
		MissionTimeout:   cfg.Worker.MissionTimeout,
		WarmupMinSeconds: cfg.Worker.WarmupMinSeconds,
		WarmupMaxSeconds: cfg.Worker.WarmupMaxSeconds,
		ChromeUAVersion:  cfg.Worker.ChromeUAVersion,
		ChromeUAPlatform: cfg.Worker.ChromeUAPlatform,
	}
	gps := newGPSRouter(redisClient, cfg)
	selectorRegistry := newSelectorRegistry(redisClient, visionCli)
	pool := worker.New(poolCfg, mq, gps, visionCli, guardian, entropy, logger).WithSelectorResolver(selectorRegistry)

	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	defer pool.Shutdown(context.Background())

	healthServer := httpapi.NewServer(cfg.HealthAddr, cfg.Gatekeep.RequestTimeout, logger,
		httpapi.NewCheckerFunc("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
	)
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && logger != nil {
			logger.Debug("health server stopped", zap.Error(err))
		}
	}()
	defer healthServer.Close()

	return pool.Run(ctx)
}

// noopEntropyAllocator backs the worker pool when Postgres persistence is
// disabled (no DATABASE_URL configured): every mission gets the zero seed
// triple rather than failing to start, matching PersistenceEnabled's soft
// degradation policy elsewhere in the config layer.
type noopEntropyAllocator struct{}

func (noopEntropyAllocator) Allocate(ctx context.Context, workerID, missionID string) (domain.HardwareEntropySeeds, error) {
	return domain.HardwareEntropySeeds{WorkerID: workerID, MissionID: missionID}, nil
}
