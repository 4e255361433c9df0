package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/estimator/internal/backend"
	"github.com/terra-clan/estimator/internal/hover"
	"github.com/terra-clan/estimator/internal/models"
)

// Redirect reasons carried in the error query parameter
const (
	ReasonNoCode         = "no_code"
	ReasonExchangeFailed = "exchange_failed"
	ReasonInvalidState   = "invalid_state"
	ReasonServerError    = "server_error"
)

// StateTTL bounds how long a Hover authorization may take
const StateTTL = 10 * time.Minute

// HoverExpiryWarning is how early a Hover connection is reported as expiring
const HoverExpiryWarning = time.Hour

const minPasswordLength = 6

// Common errors
var (
	ErrValidation   = errors.New("validation failed")
	ErrInviteFailed = errors.New("failed to invite team member")
	ErrSignUpFailed = errors.New("sign-up failed")
)

// AuthProvider is the subset of the hosted backend used by account flows
type AuthProvider interface {
	SignUp(ctx context.Context, req models.SignUpRequest, redirectTo string) (*models.User, error)
	ExchangeCodeForSession(ctx context.Context, code, verifier string) (*models.Session, error)
	CreateUser(ctx context.Context, params backend.CreateUserParams) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// TeamStore persists team members
type TeamStore interface {
	CreateTeamMember(ctx context.Context, m *models.TeamMember) error
	ListTeamMembers(ctx context.Context) ([]*models.TeamMember, error)
}

// HoverTokenStore persists Hover tokens
type HoverTokenStore interface {
	SaveHoverToken(ctx context.Context, t *models.HoverToken) error
	GetHoverToken(ctx context.Context, userID string) (*models.HoverToken, error)
}

// HoverOAuth starts and completes the Hover authorization code flow
type HoverOAuth interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*models.HoverToken, error)
}

// StateStore keeps single-use OAuth state values
type StateStore interface {
	PutState(ctx context.Context, state, userID string, ttl time.Duration) error
	ConsumeState(ctx context.Context, state string) (string, bool, error)
}

// Service implements the auth glue flows
type Service struct {
	auth    AuthProvider
	team    TeamStore
	tokens  HoverTokenStore
	hover   HoverOAuth
	states  StateStore
	siteURL string
	now     func() time.Time
}

// NewService creates a new accounts service. siteURL is the front-end base used for redirects.
func NewService(auth AuthProvider, team TeamStore, tokens HoverTokenStore, oauth HoverOAuth, states StateStore, siteURL string) *Service {
	return &Service{
		auth:    auth,
		team:    team,
		tokens:  tokens,
		hover:   oauth,
		states:  states,
		siteURL: strings.TrimRight(siteURL, "/"),
		now:     time.Now,
	}
}

// --- Sign-up ---

// SignUp registers a user with the hosted backend
func (s *Service) SignUp(ctx context.Context, req models.SignUpRequest) (*models.User, error) {
	req.Email = strings.TrimSpace(req.Email)
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if len(req.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}

	user, err := s.auth.SignUp(ctx, req, s.siteURL+"/auth/callback")
	if err != nil {
		slog.Error("sign-up failed", "email", req.Email, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSignUpFailed, err)
	}

	slog.Info("user signed up", "user_id", user.ID)
	return user, nil
}

// --- Auth callback ---

// AuthCallback holds the query of the hosted backend's redirect
type AuthCallback struct {
	Code             string
	Error            string
	ErrorDescription string
	Next             string
	Verifier         string
}

// AuthResult is where to send the browser, plus the session on success
type AuthResult struct {
	Redirect string
	Session  *models.Session
}

// CompleteAuthCallback exchanges the callback code for a session.
// Provider errors are passed through verbatim to the error page.
func (s *Service) CompleteAuthCallback(ctx context.Context, cb AuthCallback) AuthResult {
	if cb.Error != "" {
		slog.Warn("auth provider returned error", "error", cb.Error, "description", cb.ErrorDescription)
		return AuthResult{Redirect: s.authErrorURL(cb.Error, cb.ErrorDescription)}
	}

	if cb.Code == "" {
		return AuthResult{Redirect: s.authErrorURL(ReasonNoCode, "")}
	}

	session, err := s.auth.ExchangeCodeForSession(ctx, cb.Code, cb.Verifier)
	if err != nil {
		slog.Error("auth code exchange failed", "error", err)
		return AuthResult{Redirect: s.authErrorURL(ReasonExchangeFailed, "")}
	}

	return AuthResult{Redirect: safeNext(cb.Next), Session: session}
}

func (s *Service) authErrorURL(reason, description string) string {
	q := url.Values{}
	q.Set("error", reason)
	if description != "" {
		q.Set("error_description", description)
	}
	return s.siteURL + "/auth/auth-code-error?" + q.Encode()
}

// safeNext only allows same-site absolute paths
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

// --- Invites ---

// Invite creates an auth user and the linked team member. When the team
// member cannot be stored the auth user is deleted again; a failed deletion
// is only logged.
func (s *Service) Invite(ctx context.Context, req models.InviteRequest) (*models.TeamMember, error) {
	if err := validateInvite(&req); err != nil {
		return nil, err
	}

	user, err := s.auth.CreateUser(ctx, backend.CreateUserParams{
		Email:        req.Email,
		EmailConfirm: true,
		UserMetadata: map[string]any{
			"first_name": req.FirstName,
			"last_name":  req.LastName,
			"phone":      req.Phone,
		},
		AppMetadata: map[string]any{
			"role": string(req.Role),
		},
	})
	if err != nil {
		slog.Error("failed to create invited user", "email", req.Email, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrInviteFailed, err)
	}

	member := &models.TeamMember{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Role:      req.Role,
		CreatedAt: s.now().UTC(),
	}

	if err := s.team.CreateTeamMember(ctx, member); err != nil {
		slog.Error("failed to create team member, removing auth user", "user_id", user.ID, "error", err)
		if delErr := s.auth.DeleteUser(ctx, user.ID); delErr != nil {
			slog.Error("failed to remove auth user after invite failure", "user_id", user.ID, "error", delErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrInviteFailed, err)
	}

	slog.Info("team member invited", "user_id", user.ID, "role", req.Role)
	return member, nil
}

// TeamMembers lists the team, oldest first
func (s *Service) TeamMembers(ctx context.Context) ([]*models.TeamMember, error) {
	members, err := s.team.ListTeamMembers(ctx)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []*models.TeamMember{}
	}
	return members, nil
}

func validateInvite(req *models.InviteRequest) error {
	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Phone = strings.TrimSpace(req.Phone)

	if _, err := mail.ParseAddress(req.Email); err != nil {
		return fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if req.FirstName == "" || req.LastName == "" {
		return fmt.Errorf("%w: first_name and last_name are required", ErrValidation)
	}
	if req.Role == "" {
		req.Role = models.RoleSalesRep
	}
	if !req.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, req.Role)
	}
	return nil
}

// --- Hover ---

// HoverAuthorizeURL records a state for userID and returns Hover's authorize URL
func (s *Service) HoverAuthorizeURL(ctx context.Context, userID string) (string, error) {
	state, err := models.GenerateState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	if err := s.states.PutState(ctx, state, userID, StateTTL); err != nil {
		return "", err
	}

	return s.hover.AuthCodeURL(state), nil
}

// HoverCallback holds the query of Hover's redirect
type HoverCallback struct {
	Code  string
	Error string
	State string
}

// CompleteHoverAuthorization exchanges the code, stores the tokens and
// returns the front-end page to redirect to. The state issued by
// HoverAuthorizeURL is required and decides which user owns the tokens.
// Nothing is retried.
func (s *Service) CompleteHoverAuthorization(ctx context.Context, cb HoverCallback) string {
	if cb.Error != "" {
		slog.Warn("hover returned error", "error", cb.Error)
		return s.hoverErrorURL(cb.Error)
	}

	if cb.Code == "" {
		return s.hoverErrorURL(ReasonNoCode)
	}

	if cb.State == "" {
		slog.Warn("hover callback without state")
		return s.hoverErrorURL(ReasonInvalidState)
	}

	userID, ok, err := s.states.ConsumeState(ctx, cb.State)
	if err != nil {
		slog.Error("failed to read oauth state", "error", err)
		return s.hoverErrorURL(ReasonServerError)
	}
	if !ok {
		return s.hoverErrorURL(ReasonInvalidState)
	}

	token, err := s.hover.Exchange(ctx, cb.Code)
	if err != nil {
		slog.Error("hover code exchange failed", "user_id", userID, "oauth_error", hover.ErrorCode(err), "error", err)
		return s.hoverErrorURL(ReasonServerError)
	}
	token.UserID = userID

	if err := s.tokens.SaveHoverToken(ctx, token); err != nil {
		slog.Error("failed to save hover token", "user_id", userID, "error", err)
		return s.hoverErrorURL(ReasonServerError)
	}

	slog.Info("hover account connected", "user_id", userID)
	return s.siteURL + "/hover/success"
}

// HoverStatus reports whether userID has connected Hover and when the tokens expire
func (s *Service) HoverStatus(ctx context.Context, userID string) (*models.HoverStatus, error) {
	token, err := s.tokens.GetHoverToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return &models.HoverStatus{}, nil
	}

	now := s.now()
	status := &models.HoverStatus{
		Connected:    true,
		Expired:      token.ExpiresWithin(now, 0),
		ExpiringSoon: token.ExpiresWithin(now, HoverExpiryWarning),
	}
	if !token.ExpiresAt.IsZero() {
		expiresAt := token.ExpiresAt
		status.ExpiresAt = &expiresAt
	}
	return status, nil
}

func (s *Service) hoverErrorURL(reason string) string {
	return s.siteURL + "/hover/error?" + url.Values{"error": {reason}}.Encode()
}
