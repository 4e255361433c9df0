// Package hover integrates with the Hover design-measurement service over OAuth.
package hover

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/terra-clan/estimator/internal/config"
	"github.com/terra-clan/estimator/internal/models"
)

// Client performs the Hover OAuth flows
type Client struct {
	oauth      *oauth2.Config
	studioURL  string
	httpClient *http.Client
}

// NewClient creates a Hover client from configuration
func NewClient(cfg config.HoverConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.BaseURL + "/oauth/authorize",
				TokenURL:  cfg.BaseURL + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		studioURL: cfg.StudioURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// AuthCodeURL returns the Hover authorize URL for a state value
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens
func (c *Client) Exchange(ctx context.Context, code string) (*models.HoverToken, error) {
	tok, err := c.oauth.Exchange(c.contextWithClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange hover code: %w", err)
	}
	return toHoverToken(tok), nil
}

// Refresh obtains a new access token from a refresh token
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*models.HoverToken, error) {
	if refreshToken == "" {
		return nil, errors.New("no refresh token available")
	}

	src := c.oauth.TokenSource(c.contextWithClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh hover token: %w", err)
	}
	return toHoverToken(tok), nil
}

// DesignStudioURL returns the outbound design studio link for a job
func (c *Client) DesignStudioURL(jobID string) string {
	if jobID == "" {
		return c.studioURL
	}
	return c.studioURL + "/jobs/" + url.PathEscape(jobID)
}

// ErrorCode extracts the OAuth error code from a token endpoint failure
func ErrorCode(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return re.ErrorCode
	}
	return ""
}

func (c *Client) contextWithClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func toHoverToken(tok *oauth2.Token) *models.HoverToken {
	return &models.HoverToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		ExpiresAt:    tok.Expiry,
	}
}
