package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/linkpellow/chimera-core/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Idempotently create Chimera's Postgres schema",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if !cfg.PersistenceEnabled() {
		return fmt.Errorf("migrate requires DATABASE_URL (persistence is disabled)")
	}

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg.Postgres.DatabaseURL, cfg.Postgres.PoolMax, cfg.Postgres.ConnectTimeout, cfg.Fingerprint.SeedBits)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if logger != nil {
		logger.Info("schema migration complete")
	}
	return nil
}
