package cmd

import (
	"fmt"
	"os"

	"github.com/jmehdipour/cablesync/cmd/worker"
	"github.com/jmehdipour/cablesync/internal/config"
	"github.com/jmehdipour/cablesync/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:           "cablesync",
		Short:         "Cable/streaming customer lifecycle service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.Init(cfg.Log.Level)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) { logger.Sync() },
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig is shared by subcommands; the root pre-run already validated it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(newAdminCmd())
	rootCmd.AddCommand(newMeCmd())
	rootCmd.AddCommand(worker.NewWorkerCmd())
}
