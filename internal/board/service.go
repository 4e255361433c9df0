package board

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/terra-clan/estimator/internal/catalog"
	"github.com/terra-clan/estimator/internal/finance"
	"github.com/terra-clan/estimator/internal/models"
	"github.com/terra-clan/estimator/internal/storage"
)

// Common errors
var (
	ErrOpportunityNotFound   = errors.New("opportunity not found")
	ErrOptionNotFound        = errors.New("option not found")
	ErrProjectNotFound       = errors.New("project not found")
	ErrInvalidColumn         = errors.New("unknown column")
	ErrInvalidOperator       = errors.New("operator must be \"and\" or \"or\"")
	ErrPromotionNotFound     = errors.New("promotion not found")
	ErrFinancingPlanNotFound = errors.New("financing plan not found")
	ErrValidation            = errors.New("validation failed")
)

// Manager defines the board operations used by the API
type Manager interface {
	Board(ctx context.Context) (*models.Board, error)
	Columns() []models.Column

	CreateOpportunity(ctx context.Context, req models.CreateOpportunityRequest, createdBy string) (*models.Opportunity, error)
	GetOpportunity(ctx context.Context, id string) (*models.Opportunity, error)
	UpdateOpportunity(ctx context.Context, id string, req models.UpdateOpportunityRequest) (*models.Opportunity, error)
	DeleteOpportunity(ctx context.Context, id string) error
	ListOpportunities(ctx context.Context, filters models.OpportunityFilters) ([]*models.Opportunity, error)
	MoveOpportunity(ctx context.Context, id string, req models.MoveRequest) (*models.Opportunity, error)

	AddOption(ctx context.Context, opportunityID string, req models.OptionRequest) (*models.Option, error)
	UpdateOption(ctx context.Context, opportunityID, optionID string, req models.OptionRequest) (*models.Option, error)
	DeleteOption(ctx context.Context, opportunityID, optionID string) error

	CreateProject(ctx context.Context, req models.CreateProjectRequest) (*models.Project, error)
	ListProjects(ctx context.Context, column models.ColumnID) ([]*models.Project, error)
	MoveProject(ctx context.Context, id string, req models.MoveRequest) (*models.Project, error)

	Ping(ctx context.Context) error
}

// Cache stores the assembled board between writes. Snapshots are keyed by
// generation; InvalidateBoard starts a new one.
type Cache interface {
	BoardGeneration(ctx context.Context) (int64, error)
	GetBoard(ctx context.Context, gen int64) (*models.Board, bool, error)
	SetBoard(ctx context.Context, gen int64, board *models.Board, ttl time.Duration) error
	InvalidateBoard(ctx context.Context) error
}

// Publisher receives an event after every board write
type Publisher interface {
	Publish(event models.BoardEvent)
}

// Service implements Manager on a Repository and the static catalog.
// Cache and Publisher are optional.
type Service struct {
	repo      storage.Repository
	catalog   *catalog.Loader
	cache     Cache
	publisher Publisher
	cacheTTL  time.Duration
	now       func() time.Time
}

var _ Manager = (*Service)(nil)

// NewService creates a new board service
func NewService(repo storage.Repository, loader *catalog.Loader, cache Cache, publisher Publisher, cacheTTL time.Duration) *Service {
	return &Service{
		repo:      repo,
		catalog:   loader,
		cache:     cache,
		publisher: publisher,
		cacheTTL:  cacheTTL,
		now:       time.Now,
	}
}

// Ping checks that the repository is reachable
func (s *Service) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Columns returns the configured board columns
func (s *Service) Columns() []models.Column {
	return s.catalog.Columns()
}

// Board returns all columns with their cards sorted by position
func (s *Service) Board(ctx context.Context) (*models.Board, error) {
	// The generation is read before loading so a write that lands during
	// the load makes this snapshot unreachable.
	var gen int64
	cacheable := s.cache != nil
	if cacheable {
		var err error
		if gen, err = s.cache.BoardGeneration(ctx); err != nil {
			slog.Warn("board cache generation read failed", "error", err)
			cacheable = false
		} else if board, ok, err := s.cache.GetBoard(ctx, gen); err != nil {
			slog.Warn("board cache read failed", "error", err)
		} else if ok {
			return board, nil
		}
	}

	var (
		opportunities []*models.Opportunity
		projects      []*models.Project
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		opportunities, err = s.repo.ListOpportunities(gctx, models.OpportunityFilters{})
		if err != nil {
			return fmt.Errorf("failed to load opportunities: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		projects, err = s.repo.ListProjects(gctx, "")
		if err != nil {
			return fmt.Errorf("failed to load projects: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	board := assemble(s.catalog.Columns(), opportunities, projects)
	board.GeneratedAt = s.now().UTC()

	if cacheable {
		if err := s.cache.SetBoard(ctx, gen, board, s.cacheTTL); err != nil {
			slog.Warn("board cache write failed", "error", err)
		}
	}

	return board, nil
}

// assemble groups cards under their columns. Cards referencing a column that
// is no longer configured are left off the board.
func assemble(columns []models.Column, opportunities []*models.Opportunity, projects []*models.Project) *models.Board {
	board := &models.Board{Columns: make([]*models.BoardColumn, 0, len(columns))}
	byID := make(map[models.ColumnID]*models.BoardColumn, len(columns))

	for _, c := range columns {
		bc := &models.BoardColumn{
			Column:        c,
			Opportunities: []*models.Opportunity{},
			Projects:      []*models.Project{},
		}
		board.Columns = append(board.Columns, bc)
		byID[c.ID] = bc
	}

	for _, o := range opportunities {
		bc, ok := byID[o.Column]
		if !ok {
			slog.Warn("opportunity in unknown column", "id", o.ID, "column", o.Column)
			continue
		}
		bc.Opportunities = append(bc.Opportunities, o)
	}
	for _, p := range projects {
		bc, ok := byID[p.Column]
		if !ok {
			slog.Warn("project in unknown column", "id", p.ID, "column", p.Column)
			continue
		}
		bc.Projects = append(bc.Projects, p)
	}

	for _, bc := range board.Columns {
		sort.SliceStable(bc.Opportunities, func(i, j int) bool {
			return bc.Opportunities[i].Position < bc.Opportunities[j].Position
		})
		sort.SliceStable(bc.Projects, func(i, j int) bool {
			return bc.Projects[i].Position < bc.Projects[j].Position
		})
	}

	return board
}

// --- Opportunities ---

// CreateOpportunity validates and stores a new opportunity at the end of its column
func (s *Service) CreateOpportunity(ctx context.Context, req models.CreateOpportunityRequest, createdBy string) (*models.Opportunity, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}

	column := req.Column
	if column == "" {
		column = s.catalog.FirstColumn()
	}
	if !s.catalog.HasColumn(column) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidColumn, column)
	}

	if err := validateOperators(req.Operators); err != nil {
		return nil, err
	}

	promotion, err := s.promotion(req.PromotionID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	o := &models.Opportunity{
		ID:        uuid.New().String(),
		Title:     title,
		Options:   []*models.Option{},
		Operators: nonNilOperators(req.Operators),
		Column:    column,
		Promotion: promotion,
		CreatedBy: createdBy,
		CreatedAt: now,
	}

	if err := s.repo.CreateOpportunity(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to save opportunity: %w", err)
	}

	slog.Info("opportunity created", "id", o.ID, "column", o.Column, "created_by", createdBy)
	s.changed(ctx, models.EventOpportunityCreated, o.ID, "", o.Column, o.Position)

	return o, nil
}

// GetOpportunity returns an opportunity with its options
func (s *Service) GetOpportunity(ctx context.Context, id string) (*models.Opportunity, error) {
	o, err := s.repo.GetOpportunity(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get opportunity: %w", err)
	}
	if o == nil {
		return nil, ErrOpportunityNotFound
	}
	return o, nil
}

// UpdateOpportunity applies a partial update
func (s *Service) UpdateOpportunity(ctx context.Context, id string, req models.UpdateOpportunityRequest) (*models.Opportunity, error) {
	o, err := s.GetOpportunity(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title must not be empty", ErrValidation)
		}
		o.Title = title
	}

	if req.Operators != nil {
		if err := validateOperators(req.Operators); err != nil {
			return nil, err
		}
		o.Operators = req.Operators
	}

	if req.PromotionID != nil {
		promotion, err := s.promotion(*req.PromotionID)
		if err != nil {
			return nil, err
		}
		o.Promotion = promotion
	}

	if err := s.repo.UpdateOpportunity(ctx, o); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrOpportunityNotFound
		}
		return nil, fmt.Errorf("failed to update opportunity: %w", err)
	}

	s.changed(ctx, models.EventOpportunityUpdated, o.ID, "", o.Column, o.Position)
	return o, nil
}

// DeleteOpportunity removes an opportunity and its options
func (s *Service) DeleteOpportunity(ctx context.Context, id string) error {
	if err := s.repo.DeleteOpportunity(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrOpportunityNotFound
		}
		return fmt.Errorf("failed to delete opportunity: %w", err)
	}

	slog.Info("opportunity deleted", "id", id)
	s.changed(ctx, models.EventOpportunityDeleted, id, "", "", 0)
	return nil
}

// ListOpportunities returns opportunities matching filters
func (s *Service) ListOpportunities(ctx context.Context, filters models.OpportunityFilters) ([]*models.Opportunity, error) {
	if filters.Column != "" && !s.catalog.HasColumn(filters.Column) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidColumn, filters.Column)
	}

	list, err := s.repo.ListOpportunities(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list opportunities: %w", err)
	}
	if list == nil {
		list = []*models.Opportunity{}
	}
	return list, nil
}

// MoveOpportunity persists a drag-and-drop move
func (s *Service) MoveOpportunity(ctx context.Context, id string, req models.MoveRequest) (*models.Opportunity, error) {
	if !s.catalog.HasColumn(req.Column) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidColumn, req.Column)
	}

	position, err := s.repo.MoveOpportunity(ctx, id, req.Column, max(req.Position, 0))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrOpportunityNotFound
		}
		return nil, fmt.Errorf("failed to move opportunity: %w", err)
	}

	slog.Info("opportunity moved", "id", id, "column", req.Column, "position", position)
	s.changed(ctx, models.EventOpportunityMoved, id, "", req.Column, position)

	return s.GetOpportunity(ctx, id)
}

// --- Options ---

// AddOption appends an option to an opportunity and computes its price details
func (s *Service) AddOption(ctx context.Context, opportunityID string, req models.OptionRequest) (*models.Option, error) {
	o, err := s.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, err
	}

	opt, err := s.buildOption(o, req)
	if err != nil {
		return nil, err
	}
	opt.ID = uuid.New().String()
	opt.OpportunityID = o.ID
	opt.CreatedAt = s.now().UTC()

	if err := s.repo.CreateOption(ctx, opt); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrOpportunityNotFound
		}
		return nil, fmt.Errorf("failed to save option: %w", err)
	}

	s.changed(ctx, models.EventOptionCreated, opt.ID, o.ID, o.Column, opt.Position)
	return opt, nil
}

// UpdateOption replaces an option's fields and recomputes its price details
func (s *Service) UpdateOption(ctx context.Context, opportunityID, optionID string, req models.OptionRequest) (*models.Option, error) {
	o, err := s.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, err
	}

	opt, err := s.buildOption(o, req)
	if err != nil {
		return nil, err
	}
	opt.ID = optionID
	opt.OpportunityID = o.ID

	if err := s.repo.UpdateOption(ctx, opt); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrOptionNotFound
		}
		return nil, fmt.Errorf("failed to update option: %w", err)
	}

	s.changed(ctx, models.EventOptionUpdated, opt.ID, o.ID, o.Column, opt.Position)
	return opt, nil
}

// DeleteOption removes an option from an opportunity
func (s *Service) DeleteOption(ctx context.Context, opportunityID, optionID string) error {
	if err := s.repo.DeleteOption(ctx, opportunityID, optionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrOptionNotFound
		}
		return fmt.Errorf("failed to delete option: %w", err)
	}

	s.changed(ctx, models.EventOptionDeleted, optionID, opportunityID, "", 0)
	return nil
}

// buildOption validates req and resolves its catalog references. An option
// without its own promotion inherits the opportunity's.
func (s *Service) buildOption(o *models.Opportunity, req models.OptionRequest) (*models.Option, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: option title is required", ErrValidation)
	}
	if req.Price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrValidation)
	}

	opt := &models.Option{
		Content:     req.Content,
		Title:       title,
		Description: req.Description,
		Price:       req.Price,
		IsComplete:  req.IsComplete,
		IsApproved:  req.IsApproved,
		Materials:   req.Materials,
		Sections:    req.Sections,
		Promotion:   o.Promotion,
	}
	if opt.Materials == nil {
		opt.Materials = []json.RawMessage{}
	}
	if opt.Sections == nil {
		opt.Sections = []json.RawMessage{}
	}

	if req.PromotionID != "" {
		promotion, err := s.promotion(req.PromotionID)
		if err != nil {
			return nil, err
		}
		opt.Promotion = promotion
	}

	if req.FinancingPlanID != "" {
		plan := s.catalog.FinancingPlan(req.FinancingPlanID)
		if plan == nil {
			return nil, fmt.Errorf("%w: %s", ErrFinancingPlanNotFound, req.FinancingPlanID)
		}
		opt.Financing = &models.FinancingTerms{
			PlanID:   plan.ID,
			Provider: plan.Provider,
			APR:      plan.APR,
			Months:   plan.Months,
		}
	}

	opt.CalculatedPriceDetails = finance.PriceDetails(opt, s.now())
	return opt, nil
}

// --- Projects ---

// CreateProject stores a new project card at the end of its column
func (s *Service) CreateProject(ctx context.Context, req models.CreateProjectRequest) (*models.Project, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}

	status := req.Status
	switch status {
	case "":
		status = models.ProjectDraft
	case models.ProjectDraft, models.ProjectActive, models.ProjectCompleted:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	column := req.Column
	if column == "" {
		column = s.catalog.FirstColumn()
	}
	if !s.catalog.HasColumn(column) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidColumn, column)
	}

	p := &models.Project{
		ID:        uuid.New().String(),
		Status:    status,
		Type:      req.Type,
		Title:     title,
		Subtitle:  req.Subtitle,
		Date:      req.Date,
		ImageURL:  req.ImageURL,
		Column:    column,
		CreatedAt: s.now().UTC(),
	}

	if err := s.repo.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save project: %w", err)
	}

	s.changed(ctx, models.EventProjectCreated, p.ID, "", p.Column, p.Position)
	return p, nil
}

// ListProjects returns project cards, optionally for one column
func (s *Service) ListProjects(ctx context.Context, column models.ColumnID) ([]*models.Project, error) {
	if column != "" && !s.catalog.HasColumn(column) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidColumn, column)
	}

	list, err := s.repo.ListProjects(ctx, column)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	if list == nil {
		list = []*models.Project{}
	}
	return list, nil
}

// MoveProject persists a drag-and-drop move of a project card
func (s *Service) MoveProject(ctx context.Context, id string, req models.MoveRequest) (*models.Project, error) {
	if !s.catalog.HasColumn(req.Column) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidColumn, req.Column)
	}

	position, err := s.repo.MoveProject(ctx, id, req.Column, max(req.Position, 0))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to move project: %w", err)
	}

	s.changed(ctx, models.EventProjectMoved, id, "", req.Column, position)

	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	if p == nil {
		return nil, ErrProjectNotFound
	}
	return p, nil
}

// --- helpers ---

func (s *Service) promotion(id string) (*models.Promotion, error) {
	if id == "" {
		return nil, nil
	}
	p := s.catalog.Promotion(id)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPromotionNotFound, id)
	}
	return p, nil
}

// changed invalidates the cached board and notifies subscribers
func (s *Service) changed(ctx context.Context, typ models.EventType, id, parentID string, column models.ColumnID, position int) {
	if s.cache != nil {
		if err := s.cache.InvalidateBoard(ctx); err != nil {
			slog.Warn("board cache invalidation failed", "error", err)
		}
	}

	if s.publisher != nil {
		s.publisher.Publish(models.BoardEvent{
			Type:     typ,
			ID:       id,
			ParentID: parentID,
			Column:   column,
			Position: position,
			At:       s.now().UTC(),
		})
	}
}

func validateOperators(ops []models.Operator) error {
	for i, op := range ops {
		if !op.Valid() {
			return fmt.Errorf("%w: operators[%d] = %q", ErrInvalidOperator, i, op)
		}
	}
	return nil
}

func nonNilOperators(ops []models.Operator) []models.Operator {
	if ops == nil {
		return []models.Operator{}
	}
	return ops
}
