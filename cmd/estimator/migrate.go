package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/terra-clan/estimator/internal/config"
	"github.com/terra-clan/estimator/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Applies the SQL migrations embedded in the binary, or those in
MIGRATIONS_DIR when it is set, to DATABASE_DSN.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadDatabase()
		if cfg.DSN == storage.MemoryDSN {
			return fmt.Errorf("nothing to migrate for %s", storage.MemoryDSN)
		}

		slog.Info("running database migrations", "dir", cfg.MigrationsDir)
		if err := storage.MigrateFromDSN(cmd.Context(), cfg.DSN, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		slog.Info("migrations complete")
		return nil
	},
}
