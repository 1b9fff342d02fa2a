package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/JonnyWalker81/healthlytics/internal/handlers"
	"github.com/JonnyWalker81/healthlytics/internal/logger"
	"github.com/JonnyWalker81/healthlytics/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trigger service",
	Long: `Start an HTTP service exposing POST /run to trigger a batch, GET /health
and GET /metrics.`,
	RunE: runServe,
}

var (
	port string
)

func init() {
	serveCmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Override port from flag if provided
	if port != "" {
		cfg.Server.Port = port
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Credentials are resolved on the first trigger so the service can come
	// up and report configuration problems per request.
	var built *app
	pipeline := service.NewLazyPipeline(func(ctx context.Context) (service.PipelineService, error) {
		a, err := buildApp(ctx, cfg, reg, "")
		if err != nil {
			return nil, err
		}
		built = a
		return a.pipeline, nil
	})

	router := handlers.NewRouter(handlers.RouterConfig{
		Env:        cfg.Server.Env,
		TriggerKey: cfg.Server.TriggerKey,
		Pipeline:   pipeline,
		Gatherer:   reg,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("trigger service listening",
			logger.String("port", cfg.Server.Port),
			logger.String("env", cfg.Server.Env),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down trigger service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
	}

	if built != nil {
		if err := built.Close(); err != nil {
			logger.Warn("failed to close resources", logger.Err(err))
		}
	}
	return nil
}
