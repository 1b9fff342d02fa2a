package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JonnyWalker81/healthlytics/internal/alert"
	"github.com/JonnyWalker81/healthlytics/internal/config"
	"github.com/JonnyWalker81/healthlytics/internal/extract"
	"github.com/JonnyWalker81/healthlytics/internal/llm"
	"github.com/JonnyWalker81/healthlytics/internal/logger"
	"github.com/JonnyWalker81/healthlytics/internal/repository"
	"github.com/JonnyWalker81/healthlytics/internal/repository/postgres"
	"github.com/JonnyWalker81/healthlytics/internal/repository/sqlite"
	"github.com/JonnyWalker81/healthlytics/internal/service"
	"github.com/JonnyWalker81/healthlytics/internal/storage"
	"github.com/JonnyWalker81/healthlytics/internal/telemetry"
	"github.com/JonnyWalker81/healthlytics/pkg/supabase"
)

// app is a fully wired pipeline plus the resources it holds open.
type app struct {
	pipeline service.PipelineService
	closers  []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// connections lazily opens the Postgres pool and Supabase client so the
// source and store can share them.
type connections struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	supabase *supabase.Client
}

func (c *connections) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if c.pool != nil {
		return c.pool, nil
	}
	url, err := c.cfg.RequireDatabase()
	if err != nil {
		return nil, err
	}
	pool, err := postgres.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	c.pool = pool
	return pool, nil
}

func (c *connections) supabaseClient() (*supabase.Client, error) {
	if c.supabase != nil {
		return c.supabase, nil
	}
	if err := c.cfg.RequireSupabase(); err != nil {
		return nil, err
	}
	c.supabase = supabase.NewClient(c.cfg.Supabase.URL, c.cfg.Supabase.ServiceKey)
	return c.supabase, nil
}

// Close closes the pool if one was opened. pgxpool tolerates repeated Close.
func (c *connections) Close() error {
	if c.pool != nil {
		c.pool.Close()
	}
	return nil
}

// buildApp wires source, store, uploader, narrator and alerting from cfg.
// A non-empty replayDir reads a staged extract instead of the live source.
// Missing settings surface as config.ErrMissing* errors.
func buildApp(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, replayDir string) (*app, error) {
	conns := &connections{cfg: cfg}
	a := &app{closers: []func() error{conns.Close}}
	var err error
	fail := func(err error) (*app, error) {
		_ = a.Close()
		return nil, err
	}

	var source extract.Source = extract.StagedSource{Dir: replayDir}
	if replayDir == "" {
		source, err = buildSource(ctx, cfg, conns)
	}
	if err != nil {
		return fail(fmt.Errorf("failed to configure source: %w", err))
	}

	repos, err := buildStore(ctx, cfg, conns)
	if err != nil {
		return fail(fmt.Errorf("failed to configure run store: %w", err))
	}
	a.closers = append(a.closers, repos.Close)

	deps := service.Deps{
		Source:   source,
		Repos:    repos,
		Alerts:   alert.NewWebhook(cfg.Alert.WebhookURL),
		Notifier: alert.NewServerNotifier(cfg.Notify.ServerURL, cfg.Notify.Key),
		Metrics:  telemetry.NewMetrics(reg),
	}

	uploader, err := buildUploader(ctx, cfg, conns)
	if err != nil {
		return fail(fmt.Errorf("failed to configure artifact storage: %w", err))
	}
	if uploader != nil {
		deps.Uploader = uploader
	}

	narrator := llm.NewClient(llm.Config{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		BaseURL: cfg.OpenAI.BaseURL,
		Timeout: time.Duration(cfg.OpenAI.TimeoutSec) * time.Second,
	})
	if narrator.Enabled() {
		deps.Narrator = narrator
	} else {
		logger.Info("OPENAI_API_KEY not set, natural-language insights disabled")
	}

	a.pipeline = service.NewPipelineService(deps, service.OptionsFromConfig(cfg))
	return a, nil
}

func buildSource(ctx context.Context, cfg *config.Config, conns *connections) (extract.Source, error) {
	switch cfg.Database.Source {
	case config.BackendSupabase:
		client, err := conns.supabaseClient()
		if err != nil {
			return nil, err
		}
		return extract.NewSupabaseSource(client), nil
	default:
		pool, err := conns.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return extract.NewPostgresSource(pool), nil
	}
}

func buildStore(ctx context.Context, cfg *config.Config, conns *connections) (*repository.Repositories, error) {
	switch cfg.Database.Store {
	case config.BackendSQLite:
		db, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sqlite.NewRepositories(db), nil
	case config.BackendSupabase:
		client, err := conns.supabaseClient()
		if err != nil {
			return nil, err
		}
		return repository.NewSupabaseRepositories(client), nil
	default:
		pool, err := conns.postgres(ctx)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return nil, err
		}
		return postgres.NewRepositories(pool), nil
	}
}

// buildUploader returns nil when uploads are disabled or no bucket is set.
func buildUploader(ctx context.Context, cfg *config.Config, conns *connections) (*storage.DirUploader, error) {
	if cfg.Storage.Backend == config.BackendNone {
		return nil, nil
	}
	if _, err := cfg.RequireBucket(); err != nil {
		logger.Warn("ANALYTICS_STORAGE_BUCKET not set, artifact upload disabled")
		return nil, nil
	}

	var putter storage.ObjectPutter
	switch cfg.Storage.Backend {
	case config.BackendS3:
		s3p, err := storage.NewS3Putter(ctx, storage.S3Config{
			Region:    cfg.Storage.Region,
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		putter = s3p
	default:
		client, err := conns.supabaseClient()
		if err != nil {
			return nil, err
		}
		putter = storage.NewSupabasePutter(client)
	}
	return storage.NewDirUploader(putter, cfg.Storage.Concurrency), nil
}
