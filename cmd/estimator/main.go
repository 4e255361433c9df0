package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/terra-clan/estimator/internal/config"
	"github.com/terra-clan/estimator/internal/storage"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "estimator",
	Short: "estimator - sales board and estimate API",
	Long: `estimator serves the kanban sales board, priced options with
financing, team invites and the Hover design studio integration.

Run "estimator serve" to start the HTTP API.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := config.LogLevel()
		if verbose {
			level = slog.LevelDebug
		}
		setupLogging(level)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(paymentCmd)
	rootCmd.AddCommand(boardCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging installs the structured JSON logger as the default
func setupLogging(level slog.Level) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

// openRepository connects to the configured store. The memory DSN selects
// the in-process repository; anything else is PostgreSQL.
func openRepository(ctx context.Context, cfg config.DatabaseConfig) (storage.Repository, error) {
	if cfg.DSN == storage.MemoryDSN {
		slog.Warn("using in-memory repository, data is not persisted")
		return storage.NewMemoryRepository(), nil
	}

	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
		DSN:          cfg.DSN,
		MaxOpenConns: int32(cfg.MaxOpenConns),
		MaxIdleConns: int32(cfg.MaxIdleConns),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create database repository: %w", err)
	}
	return repo, nil
}
