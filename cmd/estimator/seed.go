package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/terra-clan/estimator/internal/board"
	"github.com/terra-clan/estimator/internal/cache"
	"github.com/terra-clan/estimator/internal/catalog"
	"github.com/terra-clan/estimator/internal/config"
	"github.com/terra-clan/estimator/internal/models"
)

const seedUser = "seed"

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the fixture opportunities and projects",
	Long: `Creates the opportunities, options and projects listed in the
catalog's fixtures.yaml. Prices and financing are computed the same way the API does.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		loader := catalog.NewLoader()
		if err := loader.LoadFromDir(config.CatalogDir()); err != nil {
			return fmt.Errorf("failed to load catalog: %w", err)
		}

		repo, err := openRepository(ctx, config.LoadDatabase())
		if err != nil {
			return err
		}
		defer repo.Close()

		// Writes go through the cache so a running server drops its snapshot
		var boardCache board.Cache
		redisCfg := config.LoadRedis()
		store, err := cache.NewStore(ctx, redisCfg.Address, redisCfg.Password, redisCfg.DB)
		if err != nil {
			slog.Warn("redis unavailable, board cache will not be invalidated", "error", err)
		} else {
			defer store.Close()
			boardCache = store
		}

		svc := board.NewService(repo, loader, boardCache, nil, redisCfg.BoardCacheTTL)
		opportunities, projects, err := seedFixtures(ctx, svc, loader.Fixtures())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d opportunities and %d projects\n", opportunities, projects)
		return nil
	},
}

// seedFixtures creates every fixture through the board service
func seedFixtures(ctx context.Context, svc board.Manager, fixtures *models.Fixtures) (int, int, error) {
	for _, fo := range fixtures.Opportunities {
		o, err := svc.CreateOpportunity(ctx, models.CreateOpportunityRequest{
			Title:     fo.Title,
			Column:    fo.Column,
			Operators: fo.Operators,
		}, seedUser)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to seed opportunity %q: %w", fo.Title, err)
		}

		for _, opt := range fo.Options {
			_, err := svc.AddOption(ctx, o.ID, models.OptionRequest{
				Title:           opt.Title,
				Description:     opt.Description,
				Price:           opt.Price,
				IsComplete:      true,
				IsApproved:      opt.IsApproved,
				FinancingPlanID: opt.FinancingPlanID,
				PromotionID:     opt.PromotionID,
			})
			if err != nil {
				return 0, 0, fmt.Errorf("failed to seed option %q: %w", opt.Title, err)
			}
		}

		slog.Debug("seeded opportunity", "id", o.ID, "options", len(fo.Options))
	}

	for _, p := range fixtures.Projects {
		_, err := svc.CreateProject(ctx, models.CreateProjectRequest{
			Status:   p.Status,
			Type:     p.Type,
			Title:    p.Title,
			Subtitle: p.Subtitle,
			Date:     p.Date,
			ImageURL: p.ImageURL,
			Column:   p.Column,
		})
		if err != nil {
			return 0, 0, fmt.Errorf("failed to seed project %q: %w", p.Title, err)
		}
	}

	return len(fixtures.Opportunities), len(fixtures.Projects), nil
}
