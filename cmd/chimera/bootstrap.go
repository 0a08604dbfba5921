package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/linkpellow/chimera-core/internal/config"
	"github.com/linkpellow/chimera-core/internal/domain"
	"github.com/linkpellow/chimera-core/internal/external"
	"github.com/linkpellow/chimera-core/internal/guard"
	"github.com/linkpellow/chimera-core/internal/hivemind"
	"github.com/linkpellow/chimera-core/internal/mangle"
	"github.com/linkpellow/chimera-core/internal/pipeline"
	"github.com/linkpellow/chimera-core/internal/pipeline/stations"
	"github.com/linkpellow/chimera-core/internal/queue"
	"github.com/linkpellow/chimera-core/internal/router"
	"github.com/linkpellow/chimera-core/internal/selector"
	"github.com/linkpellow/chimera-core/internal/storage"
	"github.com/linkpellow/chimera-core/internal/vision"
)

func newRedisClient(cfg config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// newHiveMind opens the Hive Mind's SQLite store, wiring a genai-backed
// embedder when an API key is configured and passing a nil embedder when
// it isn't, in which case every embedding-based Hive Mind lookup returns an
// error and no recall is available — mirroring PersistenceEnabled's
// soft-degradation policy for Postgres.
func newHiveMind(ctx context.Context, cfg config.Config, logger *zap.Logger) (*hivemind.HiveMind, error) {
	var embedder hivemind.EmbeddingEngine
	if cfg.GenAI.APIKey != "" {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.GenAI.APIKey})
		if err != nil {
			return nil, fmt.Errorf("build genai client: %w", err)
		}
		embedder = hivemind.NewGenAIEmbedder(client, cfg.GenAI.EmbeddingModel)
	} else if logger != nil {
		logger.Warn("GENAI_API_KEY not set: hive mind semantic search disabled")
	}
	return hivemind.Open(cfg.HiveMindPath, embedder)
}

// newVisionClient wires the Vision Client façade around an HTTP backend
// pointed at the out-of-scope vision service.
func newVisionClient(cfg config.Config, logger *zap.Logger) *vision.Client {
	backend := vision.NewHTTPBackend(cfg.Vision.BrainHTTPURL, cfg.Vision.VerifyTimeout)
	return vision.New(backend, logger)
}

func newMissionQueueForCmd(redisClient *redis.Client) *queue.MissionQueue {
	return queue.New(redisClient, queue.DefaultConfig(), logger)
}

// newMangleEngine builds the honeypot-detection logic kernel, following
// theRebelliousNerd-codenerd's mangle.NewEngine(mangle.DefaultConfig(), nil)
// bootstrap (no persistence backend: honeypot facts are per-page and
// never need to survive a restart).
func newMangleEngine() (*mangle.Engine, error) {
	engine, err := mangle.NewEngine(mangle.DefaultConfig(), nil)
	if err != nil {
		return nil, fmt.Errorf("build mangle engine: %w", err)
	}
	if err := engine.LoadSchemaString(guard.BrowserSchemas()); err != nil {
		return nil, fmt.Errorf("load browser schema: %w", err)
	}
	if err := engine.LoadSchemaString(guard.HoneypotRules()); err != nil {
		return nil, fmt.Errorf("load honeypot rules: %w", err)
	}
	return engine, nil
}

func newGatekeepClients(cfg config.Config) (*external.CarrierLookupClient, *external.DNCRegistryClient, *external.DemographicsClient) {
	timeout := cfg.Gatekeep.RequestTimeout
	carrier := external.NewCarrierLookupClient(cfg.Gatekeep.CarrierLookupURL, cfg.Gatekeep.CarrierAPIKey, timeout)
	dnc := external.NewDNCRegistryClient(cfg.Gatekeep.DNCLookupURL, cfg.Gatekeep.DNCAPIKey, timeout)
	demo := external.NewDemographicsClient(cfg.Gatekeep.DemographicsURL, cfg.Gatekeep.DemographicsKey, timeout)
	return carrier, dnc, demo
}

// buildPipeline assembles the eight concrete stations in the declared
// order from spec.md §4.1: identity resolution, blueprint loading, the
// scraper mission, the skip-trace fallback, then the three gatekeeping
// stages, then persistence.
func buildPipeline(gps *router.Router, hm *hivemind.HiveMind, store *storage.Store, mq *queue.MissionQueue, carrier *external.CarrierLookupClient, dnc *external.DNCRegistryClient, demo *external.DemographicsClient, logger *zap.Logger) *pipeline.Engine {
	// store is passed through nil-safe interface variables rather than the
	// concrete *storage.Store directly: a nil *storage.Store boxed straight
	// into an interface is a non-nil interface value (the classic typed-nil
	// gotcha), which would defeat BlueprintLoader/Persist's own `== nil`
	// guards and panic on first use when persistence is disabled.
	var blueprintStore stations.BlueprintStore
	var leadPersister stations.LeadPersister
	var blueprintFor func(provider string) (*domain.Blueprint, bool)
	if store != nil {
		blueprintStore = store
		leadPersister = store
		blueprintFor = func(provider string) (*domain.Blueprint, bool) {
			bp, ok, err := store.Get(context.Background(), provider)
			return bp, ok && err == nil
		}
	}

	stationList := []pipeline.Station{
		stations.Identity{},
		stations.BlueprintLoader{Router: gps, Predictor: hm, Store: blueprintStore},
		stations.ScraperEnrichment{Queue: mq},
		stations.SkipTraceFallback{Queue: mq, BlueprintFor: blueprintFor},
		stations.PhoneGatekeep{Validator: carrier},
		stations.DNCGatekeeper{Checker: dnc},
		stations.Demographics{Provider: demo},
		stations.Persist{Store: leadPersister},
	}
	return pipeline.New(stationList, logger)
}

func newSelectorRegistry(redisClient *redis.Client, visionCli *vision.Client) *selector.Registry {
	return selector.New(redisClient, selector.VisionFinder{Client: visionCli})
}

// storageForCmd opens the Postgres store when DATABASE_URL is configured,
// or returns (nil, nil) so callers fall back to in-memory/no-op behavior —
// the same soft-degradation policy config.Config.PersistenceEnabled
// documents for the rest of the platform.
func storageForCmd(ctx context.Context) (*storage.Store, error) {
	if !cfg.PersistenceEnabled() {
		return nil, nil
	}
	return storage.Open(ctx, cfg.Postgres.DatabaseURL, cfg.Postgres.PoolMax, cfg.Postgres.ConnectTimeout, cfg.Fingerprint.SeedBits)
}

func newGPSRouter(redisClient *redis.Client, cfg config.Config) *router.Router {
	rcfg := router.DefaultConfig()
	rcfg.Epsilon = cfg.Router.Epsilon
	rcfg.PreferredProbability = cfg.Router.PreferredProbability
	rcfg.StateBoostMinSamples = cfg.Router.StateBoostMinSamples
	rcfg.StateBoostWeight = cfg.Router.StateBoostWeight

	src := rand.NewSource(time.Now().UnixNano())
	return router.New(redisClient, rcfg, router.NoBlacklist{}, rand.New(src))
}
