package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/strokeworks/strokeseg/internal/api"
	"github.com/strokeworks/strokeseg/internal/api/handler"
	"github.com/strokeworks/strokeseg/internal/dataset"
	"github.com/strokeworks/strokeseg/internal/inference"
	"github.com/strokeworks/strokeseg/internal/jobs"
	"github.com/strokeworks/strokeseg/internal/pipeline"
	"github.com/strokeworks/strokeseg/internal/segmentation"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the segmentation API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogger(cfg.Log)
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"inference_mode", cfg.Inference.Mode,
		"max_jobs", cfg.Jobs.MaxConcurrent)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Jobs.ResultsDir, 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}

	store := jobs.NewStore(cfg.Jobs.ResultsDir,
		jobs.WithTTL(cfg.Jobs.TTL),
		jobs.WithSweepInterval(cfg.Jobs.CleanupInterval),
		jobs.WithLogger(slog.Default()))
	store.StartCleanupScheduler()
	defer store.StopCleanupScheduler()

	ds, err := dataset.Open(cfg.Dataset.Root, cfg.Dataset.Manifest)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	slog.Info("dataset opened", "cases", len(ds.CaseIDs()))

	runner, err := inference.NewRunner(ctx, cfg.Inference, slog.Default())
	if err != nil {
		return fmt.Errorf("create inference runner: %w", err)
	}
	slog.Info("inference runner initialized", "runner", runner.Name())

	publicURL := cfg.Server.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	svc := segmentation.NewService(store,
		pipeline.New(ds, runner, slog.Default()),
		cfg.Jobs.ResultsDir, publicURL, slog.Default())

	router := api.NewRouter(api.Dependencies{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RootHandler:    handler.NewRootHandler(version),
		HealthHandler:  handler.NewHealthHandler(store, cfg.Jobs.ResultsDir),
		ListCases:      handler.NewListCasesHandler(ds),
		CreateSegment:  handler.NewCreateSegmentHandler(svc, store, cfg.Jobs.MaxConcurrent),
		JobStatus:      handler.NewJobStatusHandler(store),
		ServeFile:      handler.NewFileHandler(cfg.Jobs.ResultsDir, slog.Default()),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
