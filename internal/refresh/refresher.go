package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/terra-clan/estimator/internal/hover"
	"github.com/terra-clan/estimator/internal/models"
)

// TokenStore lists and saves Hover tokens
type TokenStore interface {
	ListExpiringHoverTokens(ctx context.Context, before time.Time) ([]*models.HoverToken, error)
	SaveHoverToken(ctx context.Context, t *models.HoverToken) error
}

// TokenSource exchanges a refresh token for a new token
type TokenSource interface {
	Refresh(ctx context.Context, refreshToken string) (*models.HoverToken, error)
}

// Refresher periodically refreshes Hover tokens that are about to expire
type Refresher struct {
	store    TokenStore
	source   TokenSource
	interval time.Duration
	window   time.Duration
	now      func() time.Time
}

// NewRefresher creates a new refresh worker
func NewRefresher(store TokenStore, source TokenSource, interval, window time.Duration) *Refresher {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if window <= 0 {
		window = 30 * time.Minute
	}

	return &Refresher{
		store:    store,
		source:   source,
		interval: interval,
		window:   window,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled. It always returns nil so it can run
// inside an errgroup next to the HTTP server.
func (r *Refresher) Run(ctx context.Context) error {
	slog.Info("token refresh worker started", "interval", r.interval, "window", r.window)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RefreshExpiring(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("token refresh worker stopped")
			return nil
		case <-ticker.C:
			r.RefreshExpiring(ctx)
		}
	}
}

// RefreshExpiring refreshes every token expiring within the window and
// returns how many were renewed. Failures are logged and left for the next cycle.
func (r *Refresher) RefreshExpiring(ctx context.Context) int {
	expiring, err := r.store.ListExpiringHoverTokens(ctx, r.now().Add(r.window))
	if err != nil {
		slog.Error("failed to list expiring hover tokens", "error", err)
		return 0
	}

	if len(expiring) == 0 {
		slog.Debug("no hover tokens to refresh")
		return 0
	}

	refreshed := 0
	for _, tok := range expiring {
		if ctx.Err() != nil {
			break
		}

		fresh, err := r.source.Refresh(ctx, tok.RefreshToken)
		if err != nil {
			slog.Error("failed to refresh hover token",
				"user_id", tok.UserID,
				"oauth_error", hover.ErrorCode(err),
				"error", err,
			)
			continue
		}

		fresh.UserID = tok.UserID
		if err := r.store.SaveHoverToken(ctx, fresh); err != nil {
			slog.Error("failed to save refreshed hover token", "user_id", tok.UserID, "error", err)
			continue
		}

		refreshed++
		slog.Info("hover token refreshed", "user_id", tok.UserID, "expires_at", fresh.ExpiresAt)
	}

	return refreshed
}
