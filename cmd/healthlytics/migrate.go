package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonnyWalker81/healthlytics/internal/config"
	"github.com/JonnyWalker81/healthlytics/internal/logger"
	"github.com/JonnyWalker81/healthlytics/internal/repository/postgres"
	"github.com/JonnyWalker81/healthlytics/internal/repository/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the run, summary and relationship tables",
	Long: `Create analytics_runs, analytics_summary and analytics_relationships in the
configured run store. Supabase stores are managed through their own
migrations and are left untouched.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	switch cfg.Database.Store {
	case config.BackendSQLite:
		db, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
		logger.Info("schema ready", logger.String("store", "sqlite"), logger.String("path", cfg.Database.SQLitePath))
	case config.BackendPostgres:
		url, err := cfg.RequireDatabase()
		if err != nil {
			return err
		}
		pool, err := postgres.Connect(ctx, url)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		logger.Info("schema ready", logger.String("store", "postgres"))
	default:
		return fmt.Errorf("migrate does not manage the %s store", cfg.Database.Store)
	}
	return nil
}
