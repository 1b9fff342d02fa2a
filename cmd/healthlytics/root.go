package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonnyWalker81/healthlytics/internal/config"
	"github.com/JonnyWalker81/healthlytics/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "healthlytics",
	Short: "Health analytics batch pipeline",
	Long: `Extracts nutrition, activity, sleep and weight history, builds daily
features and relationship statistics, and publishes per-user insights.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is fine; the environment may already be populated.
		_ = godotenv.Load()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

// loadConfig reads configuration and installs the configured logger as the
// process default.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.SetDefault(logger.New(logger.Config{
		Level:   logger.ParseLevel(cfg.Log.Level),
		Format:  cfg.Log.Format,
		Backend: cfg.Log.Backend,
	}))
	return cfg, nil
}
