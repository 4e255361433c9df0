package storage

import (
	"context"
	"errors"
	"time"

	"github.com/terra-clan/estimator/internal/models"
)

// ErrNotFound is returned by writes that matched no row
var ErrNotFound = errors.New("record not found")

// Repository defines the interface for estimator persistence.
// Getters return (nil, nil) when the record does not exist.
type Repository interface {
	// Opportunities
	CreateOpportunity(ctx context.Context, o *models.Opportunity) error
	GetOpportunity(ctx context.Context, id string) (*models.Opportunity, error)
	UpdateOpportunity(ctx context.Context, o *models.Opportunity) error
	DeleteOpportunity(ctx context.Context, id string) error
	ListOpportunities(ctx context.Context, filters models.OpportunityFilters) ([]*models.Opportunity, error)
	MoveOpportunity(ctx context.Context, id string, column models.ColumnID, position int) (int, error)

	// Options
	CreateOption(ctx context.Context, opt *models.Option) error
	UpdateOption(ctx context.Context, opt *models.Option) error
	DeleteOption(ctx context.Context, opportunityID, optionID string) error

	// Projects
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context, column models.ColumnID) ([]*models.Project, error)
	MoveProject(ctx context.Context, id string, column models.ColumnID, position int) (int, error)

	// Team members
	CreateTeamMember(ctx context.Context, m *models.TeamMember) error
	ListTeamMembers(ctx context.Context) ([]*models.TeamMember, error)

	// Hover tokens
	SaveHoverToken(ctx context.Context, t *models.HoverToken) error
	GetHoverToken(ctx context.Context, userID string) (*models.HoverToken, error)
	ListExpiringHoverTokens(ctx context.Context, before time.Time) ([]*models.HoverToken, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)
