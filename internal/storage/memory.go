package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/terra-clan/estimator/internal/models"
)

// MemoryDSN selects the in-memory repository instead of PostgreSQL
const MemoryDSN = "memory://"

// MemoryRepository is a process-local Repository for development and tests.
// Records are copied on the way in and out.
type MemoryRepository struct {
	mu            sync.RWMutex
	opportunities map[string]*models.Opportunity
	options       map[string]*models.Option
	projects      map[string]*models.Project
	members       map[string]*models.TeamMember
	hoverTokens   map[string]*models.HoverToken
	now           func() time.Time
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		opportunities: make(map[string]*models.Opportunity),
		options:       make(map[string]*models.Option),
		projects:      make(map[string]*models.Project),
		members:       make(map[string]*models.TeamMember),
		hoverTokens:   make(map[string]*models.HoverToken),
		now:           time.Now,
	}
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op
func (r *MemoryRepository) Close() error { return nil }

// --- Opportunities ---

func (r *MemoryRepository) CreateOpportunity(ctx context.Context, o *models.Opportunity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.opportunities[o.ID]; exists {
		return fmt.Errorf("opportunity %s already exists", o.ID)
	}

	o.Position = r.nextOpportunityPosition(o.Column)
	o.LastUpdated = o.CreatedAt

	stored := *o
	stored.Options = nil
	stored.Operators = append([]models.Operator(nil), o.Operators...)
	r.opportunities[o.ID] = &stored
	return nil
}

func (r *MemoryRepository) GetOpportunity(ctx context.Context, id string) (*models.Opportunity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.opportunities[id]
	if !ok {
		return nil, nil
	}
	return r.opportunityCopy(o), nil
}

func (r *MemoryRepository) UpdateOpportunity(ctx context.Context, o *models.Opportunity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.opportunities[o.ID]
	if !ok {
		return fmt.Errorf("opportunity %s: %w", o.ID, ErrNotFound)
	}

	stored.Title = o.Title
	stored.Operators = append([]models.Operator(nil), o.Operators...)
	stored.Promotion = o.Promotion
	stored.LastUpdated = r.now()
	o.LastUpdated = stored.LastUpdated
	return nil
}

func (r *MemoryRepository) DeleteOpportunity(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.opportunities[id]
	if !ok {
		return fmt.Errorf("opportunities %s: %w", id, ErrNotFound)
	}

	delete(r.opportunities, id)
	for optID, opt := range r.options {
		if opt.OpportunityID == id {
			delete(r.options, optID)
		}
	}
	for _, other := range r.opportunities {
		if other.Column == o.Column && other.Position > o.Position {
			other.Position--
		}
	}
	return nil
}

func (r *MemoryRepository) ListOpportunities(ctx context.Context, filters models.OpportunityFilters) ([]*models.Opportunity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var list []*models.Opportunity
	for _, o := range r.opportunities {
		if filters.Column != "" && o.Column != filters.Column {
			continue
		}
		list = append(list, o)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].Column != list[j].Column {
			return list[i].Column < list[j].Column
		}
		if list[i].Position != list[j].Position {
			return list[i].Position < list[j].Position
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(list) {
			list = nil
		} else {
			list = list[filters.Offset:]
		}
	}
	if filters.Limit > 0 && len(list) > filters.Limit {
		list = list[:filters.Limit]
	}

	out := make([]*models.Opportunity, 0, len(list))
	for _, o := range list {
		out = append(out, r.opportunityCopy(o))
	}
	return out, nil
}

func (r *MemoryRepository) MoveOpportunity(ctx context.Context, id string, column models.ColumnID, position int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.opportunities[id]
	if !ok {
		return 0, fmt.Errorf("opportunities %s: %w", id, ErrNotFound)
	}

	cards := make([]card, 0, len(r.opportunities))
	for _, other := range r.opportunities {
		cards = append(cards, card{id: other.ID, column: &other.Column, position: &other.Position})
	}

	pos := moveCard(cards, id, column, position)
	o.LastUpdated = r.now()
	return pos, nil
}

func (r *MemoryRepository) nextOpportunityPosition(column models.ColumnID) int {
	next := 0
	for _, o := range r.opportunities {
		if o.Column == column && o.Position >= next {
			next = o.Position + 1
		}
	}
	return next
}

func (r *MemoryRepository) opportunityCopy(o *models.Opportunity) *models.Opportunity {
	cp := *o
	cp.Operators = append([]models.Operator{}, o.Operators...)
	cp.Options = []*models.Option{}
	for _, opt := range r.options {
		if opt.OpportunityID == o.ID {
			optCopy := *opt
			cp.Options = append(cp.Options, &optCopy)
		}
	}
	sort.Slice(cp.Options, func(i, j int) bool { return cp.Options[i].Position < cp.Options[j].Position })
	return &cp
}

// --- Options ---

func (r *MemoryRepository) CreateOption(ctx context.Context, opt *models.Option) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.opportunities[opt.OpportunityID]
	if !ok {
		return fmt.Errorf("opportunity %s: %w", opt.OpportunityID, ErrNotFound)
	}

	next := 0
	for _, other := range r.options {
		if other.OpportunityID == opt.OpportunityID && other.Position >= next {
			next = other.Position + 1
		}
	}
	opt.Position = next
	opt.UpdatedAt = opt.CreatedAt

	stored := *opt
	r.options[opt.ID] = &stored
	o.LastUpdated = r.now()
	return nil
}

func (r *MemoryRepository) UpdateOption(ctx context.Context, opt *models.Option) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.options[opt.ID]
	if !ok || stored.OpportunityID != opt.OpportunityID {
		return fmt.Errorf("option %s: %w", opt.ID, ErrNotFound)
	}

	opt.Position = stored.Position
	opt.CreatedAt = stored.CreatedAt
	opt.UpdatedAt = r.now()

	updated := *opt
	r.options[opt.ID] = &updated
	if o, ok := r.opportunities[opt.OpportunityID]; ok {
		o.LastUpdated = opt.UpdatedAt
	}
	return nil
}

func (r *MemoryRepository) DeleteOption(ctx context.Context, opportunityID, optionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.options[optionID]
	if !ok || stored.OpportunityID != opportunityID {
		return fmt.Errorf("option %s: %w", optionID, ErrNotFound)
	}

	delete(r.options, optionID)
	for _, other := range r.options {
		if other.OpportunityID == opportunityID && other.Position > stored.Position {
			other.Position--
		}
	}
	if o, ok := r.opportunities[opportunityID]; ok {
		o.LastUpdated = r.now()
	}
	return nil
}

// --- Projects ---

func (r *MemoryRepository) CreateProject(ctx context.Context, p *models.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.projects[p.ID]; exists {
		return fmt.Errorf("project %s already exists", p.ID)
	}

	next := 0
	for _, other := range r.projects {
		if other.Column == p.Column && other.Position >= next {
			next = other.Position + 1
		}
	}
	p.Position = next
	p.UpdatedAt = p.CreatedAt

	stored := *p
	r.projects[p.ID] = &stored
	return nil
}

func (r *MemoryRepository) GetProject(ctx context.Context, id string) (*models.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) ListProjects(ctx context.Context, column models.ColumnID) ([]*models.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var list []*models.Project
	for _, p := range r.projects {
		if column != "" && p.Column != column {
			continue
		}
		cp := *p
		list = append(list, &cp)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].Column != list[j].Column {
			return list[i].Column < list[j].Column
		}
		return list[i].Position < list[j].Position
	})
	return list, nil
}

func (r *MemoryRepository) MoveProject(ctx context.Context, id string, column models.ColumnID, position int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[id]
	if !ok {
		return 0, fmt.Errorf("projects %s: %w", id, ErrNotFound)
	}

	cards := make([]card, 0, len(r.projects))
	for _, other := range r.projects {
		cards = append(cards, card{id: other.ID, column: &other.Column, position: &other.Position})
	}

	pos := moveCard(cards, id, column, position)
	p.UpdatedAt = r.now()
	return pos, nil
}

// card points at the positional fields of a stored row
type card struct {
	id       string
	column   *models.ColumnID
	position *int
}

// moveCard applies the same shifting rules as the SQL implementation
func moveCard(cards []card, id string, column models.ColumnID, position int) int {
	var moving card
	for _, c := range cards {
		if c.id == id {
			moving = c
			break
		}
	}

	siblings := 0
	for _, c := range cards {
		if c.id == id {
			continue
		}
		if *c.column == *moving.column && *c.position > *moving.position {
			*c.position--
		}
		if *c.column == column {
			siblings++
		}
	}

	position = clampPosition(position, siblings)

	for _, c := range cards {
		if c.id != id && *c.column == column && *c.position >= position {
			*c.position++
		}
	}

	*moving.column = column
	*moving.position = position
	return position
}

// --- Team members ---

func (r *MemoryRepository) CreateTeamMember(ctx context.Context, m *models.TeamMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, other := range r.members {
		if other.UserID == m.UserID {
			return fmt.Errorf("team member for user %s already exists", m.UserID)
		}
	}

	stored := *m
	r.members[m.ID] = &stored
	return nil
}

func (r *MemoryRepository) ListTeamMembers(ctx context.Context) ([]*models.TeamMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*models.TeamMember, 0, len(r.members))
	for _, m := range r.members {
		cp := *m
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

// --- Hover tokens ---

func (r *MemoryRepository) SaveHoverToken(ctx context.Context, t *models.HoverToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	stored := *t
	if stored.TokenType == "" {
		stored.TokenType = "Bearer"
	}
	stored.CreatedAt = now
	if existing, ok := r.hoverTokens[t.UserID]; ok {
		stored.CreatedAt = existing.CreatedAt
		if stored.RefreshToken == "" {
			stored.RefreshToken = existing.RefreshToken
		}
	}
	stored.UpdatedAt = now
	r.hoverTokens[t.UserID] = &stored

	t.CreatedAt = stored.CreatedAt
	t.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *MemoryRepository) GetHoverToken(ctx context.Context, userID string) (*models.HoverToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.hoverTokens[userID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *MemoryRepository) ListExpiringHoverTokens(ctx context.Context, before time.Time) ([]*models.HoverToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var list []*models.HoverToken
	for _, t := range r.hoverTokens {
		if t.ExpiresAt.IsZero() || !t.ExpiresAt.Before(before) || t.RefreshToken == "" {
			continue
		}
		cp := *t
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ExpiresAt.Before(list[j].ExpiresAt) })
	return list, nil
}
