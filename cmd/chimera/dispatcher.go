package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linkpellow/chimera-core/internal/domain"
	"github.com/linkpellow/chimera-core/internal/httpapi"
)

// leadIntake is the shape a raw stdin line must satisfy before it becomes a
// PipelineContext: a name is the minimum Identity needs to resolve
// first/last, and linkedinUrl is the upsert key storage.Store's leads table
// coalesces on, so a lead missing either is rejected at the boundary rather
// than failing three stations later.
type leadIntake struct {
	Name        string `json:"name" validate:"required"`
	LinkedInURL string `json:"linkedinUrl" validate:"required,url"`
}

var intakeValidator = validator.New()

// defaultLeadBudget matches spec scenario 1's happy-path budget (5.0). It
// is the --budget flag's default; an explicit --budget 0 is used as given.
const defaultLeadBudget = 5.0

var dispatcherBudget float64

var dispatcherCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "Run the pipeline engine over newline-delimited JSON leads on stdin",
	RunE:  runDispatcher,
}

func init() {
	dispatcherCmd.Flags().Float64Var(&dispatcherBudget, "budget", defaultLeadBudget, "Per-lead cost budget")
}

func runDispatcher(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

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

	mq := newMissionQueueForCmd(redisClient)
	gps := newGPSRouter(redisClient, cfg)
	carrier, dnc, demo := newGatekeepClients(cfg)

	engine := buildPipeline(gps, hm, store, mq, carrier, dnc, demo, logger)

	healthServer := httpapi.NewServer(cfg.HealthAddr, cfg.Gatekeep.RequestTimeout, logger,
		httpapi.NewCheckerFunc("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
	)
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && logger != nil {
			logger.Debug("health server stopped", zap.Error(err))
		}
	}()
	defer healthServer.Close()

	scanner := bufio.NewScanner(cmd.InOrStdin())
	enc := json.NewEncoder(cmd.OutOrStdout())
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var lead map[string]any
		if err := json.Unmarshal(line, &lead); err != nil {
			if logger != nil {
				logger.Warn("skipping malformed lead line", zap.Error(err))
			}
			continue
		}

		var intake leadIntake
		if err := json.Unmarshal(line, &intake); err == nil {
			if verr := intakeValidator.Struct(intake); verr != nil {
				if logger != nil {
					logger.Warn("skipping invalid lead line", zap.Error(verr))
				}
				continue
			}
		}

		pctx := domain.NewPipelineContext(lead, dispatcherBudget)
		executed := engine.Run(ctx, pctx)

		if err := enc.Encode(dispatchResult{
			Fields:          pctx.Data,
			TotalCost:       pctx.TotalCost,
			StationsExecuted: executed,
			Errors:          pctx.Errors,
		}); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	}
	return scanner.Err()
}

type dispatchResult struct {
	Fields           map[string]any `json:"fields"`
	TotalCost        float64        `json:"total_cost"`
	StationsExecuted int            `json:"stations_executed"`
	Errors           []string       `json:"errors,omitempty"`
}
