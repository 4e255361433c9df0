package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/terra-clan/estimator/internal/accounts"
	"github.com/terra-clan/estimator/internal/api"
	"github.com/terra-clan/estimator/internal/backend"
	"github.com/terra-clan/estimator/internal/board"
	"github.com/terra-clan/estimator/internal/cache"
	"github.com/terra-clan/estimator/internal/catalog"
	"github.com/terra-clan/estimator/internal/config"
	"github.com/terra-clan/estimator/internal/health"
	"github.com/terra-clan/estimator/internal/hover"
	"github.com/terra-clan/estimator/internal/realtime"
	"github.com/terra-clan/estimator/internal/refresh"
	"github.com/terra-clan/estimator/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Starts the HTTP API together with the Hover token refresh worker.
Pending database migrations are applied first unless DATABASE_DSN is memory://.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	slog.Info("starting estimator",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"site_url", cfg.Server.SiteURL,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	defer initCancel()

	checks := health.NewRegistry(3 * time.Second)

	if cfg.Database.DSN != storage.MemoryDSN {
		slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
		if err := storage.MigrateFromDSN(initCtx, cfg.Database.DSN, cfg.Database.MigrationsDir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		pgChecker, err := health.NewPostgresChecker(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("failed to create postgres checker: %w", err)
		}
		defer pgChecker.Close()
		checks.Register(pgChecker)
	}

	repo, err := openRepository(initCtx, cfg.Database)
	if err != nil {
		return err
	}
	defer repo.Close()
	checks.Register(health.Func("database", repo.Ping))
	slog.Info("database connected successfully")

	store, err := cache.NewStore(initCtx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer store.Close()
	checks.Register(health.NewRedisChecker(store.Client()))

	loader := catalog.NewLoader()
	if err := loader.LoadFromDir(cfg.Catalog.Dir); err != nil {
		slog.Warn("failed to load catalog from dir, using defaults", "dir", cfg.Catalog.Dir, "error", err)
	}

	backendClient := backend.NewClient(cfg.Backend.URL, cfg.Backend.AnonKey,
		backend.WithServiceRoleKey(cfg.Backend.ServiceRoleKey),
		backend.WithTimeout(cfg.Backend.Timeout))
	checks.Register(health.Func("backend", backendClient.Health))

	hoverClient := hover.NewClient(cfg.Hover)
	hub := realtime.NewHub(cfg.Server.Origins())

	boardService := board.NewService(repo, loader, store, hub, cfg.Redis.BoardCacheTTL)
	accountService := accounts.NewService(backendClient, repo, repo, hoverClient, store, cfg.Server.SiteURL)
	refresher := refresh.NewRefresher(repo, hoverClient, cfg.Refresh.Interval, cfg.Refresh.Window)

	server := api.NewServer(cfg.Server, api.Dependencies{
		Board:         boardService,
		Accounts:      accountService,
		Catalog:       loader,
		Users:         backendClient,
		Uploader:      backendClient,
		Studio:        hoverClient,
		Events:        hub,
		Health:        checks,
		StorageBucket: cfg.Backend.StorageBucket,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return refresher.Run(gctx)
	})

	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down gracefully...")

		// Websockets are hijacked and not tracked by Shutdown
		hub.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown error: %w", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("estimator stopped")
	return err
}
