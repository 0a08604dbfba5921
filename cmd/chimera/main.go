// Package main is the Chimera CLI entry point and command registration hub,
// following theRebelliousNerd-codenerd/cmd/nerd/main.go's rootCmd +
// PersistentPreRunE logger bootstrap + init() subcommand-registration
// pattern. It registers four subcommands: worker (the worker runtime),
// dispatcher (the pipeline engine over stdin leads), router (prints the GPS
// rankings), and migrate (a one-shot schema migration).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/linkpellow/chimera-core/internal/config"
)

var (
	verbose    bool
	configPath string

	logger *zap.Logger
	cfg    config.Config
)

var rootCmd = &cobra.Command{
	Use:   "chimera",
	Short: "Chimera - distributed web-scraping and data-enrichment platform",
	Long: `Chimera runs the Enrichment Pipeline Engine, the Mission Dispatcher
and Worker Runtime ("Body"), and the Adaptive Provider Router ("GPS")
backed by the shared Hive Mind memory.

Run a subcommand to start one of the platform's deployable processes.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")

	rootCmd.AddCommand(
		workerCmd,
		dispatcherCmd,
		routerCmd,
		migrateCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
