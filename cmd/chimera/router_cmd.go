package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var routerCmd = &cobra.Command{
	Use:   "router",
	Short: "Print GPS provider rankings (success rate, latency, score)",
	RunE:  runRouter,
}

func runRouter(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	redisClient, err := newRedisClient(cfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	gps := newGPSRouter(redisClient, cfg)
	rankings := gps.Rankings(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rankings); err != nil {
		return fmt.Errorf("encode rankings: %w", err)
	}
	return nil
}
