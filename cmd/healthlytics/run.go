package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonnyWalker81/healthlytics/internal/logger"
	"github.com/JonnyWalker81/healthlytics/internal/models"
	"github.com/JonnyWalker81/healthlytics/internal/service"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one analytics batch",
	Long: `Run the full pipeline once: extract, aggregate, merge features, compute
relations and insights, persist summaries and upload artifacts. The batch id
is printed as BATCH_ID:<id> for every started batch, including failed ones.`,
	RunE: runBatch,
}

var (
	runUserID int64
	replayDir string
)

func init() {
	runCmd.Flags().Int64VarP(&runUserID, "user", "u", 0, "Restrict the batch to one user id (overrides config)")
	runCmd.Flags().StringVar(&replayDir, "replay", "", "Read the raw tables from a staged batch directory instead of the database")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, nil, replayDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close resources", logger.Err(err))
		}
	}()

	var opts service.RunOptions
	if cmd.Flags().Changed("user") {
		opts.UserID = &runUserID
	}

	return executeRun(ctx, cmd.OutOrStdout(), a.pipeline, opts)
}

// executeRun runs one batch and prints BATCH_ID:<id> whenever a batch was
// started. A batch that ends in error still prints its id before failing.
func executeRun(ctx context.Context, out io.Writer, pipeline service.PipelineService, opts service.RunOptions) error {
	result, err := pipeline.Run(ctx, opts)
	if result != nil && result.BatchID != "" {
		fmt.Fprintf(out, "BATCH_ID:%s\n", result.BatchID)
	}
	if err != nil {
		return fmt.Errorf("analytics run failed: %w", err)
	}

	logger.Info("analytics run complete",
		logger.String("batch_id", result.BatchID),
		logger.String("status", string(result.Status)),
		logger.Any("failed_stages", result.FailedStages),
		logger.Int("artifacts", len(result.Artifacts)),
		logger.Int("uploaded", result.Uploaded),
	)
	if result.Status == models.RunStatusError {
		return fmt.Errorf("batch %s ended with errors: %s", result.BatchID, result.Error)
	}
	return nil
}
