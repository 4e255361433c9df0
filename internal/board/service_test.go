package board

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/estimator/internal/catalog"
	"github.com/terra-clan/estimator/internal/models"
	"github.com/terra-clan/estimator/internal/storage"
)

type recorder struct {
	mu     sync.Mutex
	events []models.BoardEvent
}

func (r *recorder) Publish(event models.BoardEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) types() []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]models.EventType, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

type memoryCache struct {
	mu          sync.Mutex
	gen         int64
	boards      map[int64]*models.Board
	gets        int
	invalidated int
	getErr      error
}

func (c *memoryCache) BoardGeneration(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

func (c *memoryCache) GetBoard(ctx context.Context, gen int64) (*models.Board, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	board, ok := c.boards[gen]
	return board, ok, nil
}

func (c *memoryCache) SetBoard(ctx context.Context, gen int64, board *models.Board, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.boards == nil {
		c.boards = map[int64]*models.Board{}
	}
	c.boards[gen] = board
	return nil
}

func (c *memoryCache) InvalidateBoard(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	c.gen++
	return nil
}

// current returns the snapshot readers would be served
func (c *memoryCache) current() *models.Board {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boards[c.gen]
}

func newTestCatalog(t *testing.T) *catalog.Loader {
	t.Helper()
	loader := catalog.NewLoader()
	require.NoError(t, loader.LoadFromDir("../../catalog"))
	return loader
}

func newTestService(t *testing.T) (*Service, *storage.MemoryRepository, *memoryCache, *recorder) {
	t.Helper()
	repo := storage.NewMemoryRepository()
	cache := &memoryCache{}
	events := &recorder{}
	svc := NewService(repo, newTestCatalog(t), cache, events, time.Minute)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, repo, cache, events
}

func TestCreateOpportunity(t *testing.T) {
	svc, _, cache, events := newTestService(t)
	ctx := context.Background()

	o, err := svc.CreateOpportunity(ctx, models.CreateOpportunityRequest{
		Title:     "  Roof replacement ",
		Operators: []models.Operator{models.OperatorAnd},
	}, "user-1")
	require.NoError(t, err)

	assert.Equal(t, "Roof replacement", o.Title)
	assert.Equal(t, models.ColumnDrafts, o.Column)
	assert.Equal(t, 0, o.Position)
	assert.Equal(t, "user-1", o.CreatedBy)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, 1, cache.invalidated)
	assert.Equal(t, []models.EventType{models.EventOpportunityCreated}, events.types())
}

func TestCreateOpportunity_Validation(t *testing.T) {
	svc, _, _, events := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  models.CreateOpportunityRequest
		want error
	}{
		{"empty title", models.CreateOpportunityRequest{Title: "  "}, ErrValidation},
		{"unknown column", models.CreateOpportunityRequest{Title: "x", Column: "archived"}, ErrInvalidColumn},
		{"bad operator", models.CreateOpportunityRequest{Title: "x", Operators: []models.Operator{"xor"}}, ErrInvalidOperator},
		{"unknown promotion", models.CreateOpportunityRequest{Title: "x", PromotionID: "nope"}, ErrPromotionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOpportunity(ctx, tt.req, "")
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, events.types())
}

func TestBoard_GroupsAndOrders(t *testing.T) {
	svc, _, cache, _ := newTestService(t)
	ctx := context.Background()

	var ids []string
	for _, title := range []string{"A", "B", "C"} {
		o, err := svc.CreateOpportunity(ctx, models.CreateOpportunityRequest{Title: title}, "")
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}
	_, err := svc.CreateProject(ctx, models.CreateProjectRequest{Title: "Kitchen", Column: models.ColumnApproved})
	require.NoError(t, err)

	// C to the top of drafts, A to presented
	_, err = svc.MoveOpportunity(ctx, ids[2], models.MoveRequest{Column: models.ColumnDrafts, Position: 0})
	require.NoError(t, err)
	_, err = svc.MoveOpportunity(ctx, ids[0], models.MoveRequest{Column: models.ColumnPresented, Position: 5})
	require.NoError(t, err)

	board, err := svc.Board(ctx)
	require.NoError(t, err)
	require.Len(t, board.Columns, 3)

	titles := func(c *models.BoardColumn) []string {
		out := []string{}
		for _, o := range c.Opportunities {
			out = append(out, o.Title)
		}
		return out
	}

	want := map[models.ColumnID][]string{
		models.ColumnDrafts:    {"C", "B"},
		models.ColumnPresented: {"A"},
		models.ColumnApproved:  {},
	}
	for _, c := range board.Columns {
		if diff := cmp.Diff(want[c.ID], titles(c)); diff != "" {
			t.Errorf("column %s mismatch (-want +got):\n%s", c.ID, diff)
		}
	}
	require.Len(t, board.Columns[2].Projects, 1)
	assert.Equal(t, "Kitchen", board.Columns[2].Projects[0].Title)

	// second read is served from the cache
	assert.NotNil(t, cache.current())
	again, err := svc.Board(ctx)
	require.NoError(t, err)
	assert.Same(t, board, again)
}

func TestBoard_CacheErrorFallsBack(t *testing.T) {
	svc, _, cache, _ := newTestService(t)
	cache.getErr = errors.New("redis down")

	board, err := svc.Board(context.Background())
	require.NoError(t, err)
	assert.Len(t, board.Columns, 3)
}

// pausingRepo holds the first ListOpportunities call after it has read the store
type pausingRepo struct {
	*storage.MemoryRepository
	loaded  chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *pausingRepo) ListOpportunities(ctx context.Context, filters models.OpportunityFilters) ([]*models.Opportunity, error) {
	list, err := r.MemoryRepository.ListOpportunities(ctx, filters)
	r.once.Do(func() {
		close(r.loaded)
		<-r.release
	})
	return list, err
}

func TestBoard_WriteDuringLoadIsNotHiddenByCache(t *testing.T) {
	repo := &pausingRepo{
		MemoryRepository: storage.NewMemoryRepository(),
		loaded:           make(chan struct{}),
		release:          make(chan struct{}),
	}
	cache := &memoryCache{}
	svc := NewService(repo, newTestCatalog(t), cache, nil, time.Minute)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Board(ctx)
		done <- err
	}()

	<-repo.loaded
	_, err := svc.CreateOpportunity(ctx, models.CreateOpportunityRequest{Title: "Roof"}, "")
	require.NoError(t, err)
	close(repo.release)
	require.NoError(t, <-done)

	board, err := svc.Board(ctx)
	require.NoError(t, err)

	count := 0
	for _, c := range board.Columns {
		count += len(c.Opportunities)
	}
	assert.Equal(t, 1, count)
}

func TestAssemble_DropsUnknownColumns(t *testing.T) {
	board := assemble(models.DefaultColumns(),
		[]*models.Opportunity{
			{ID: "b", Column: models.ColumnDrafts, Position: 1},
			{ID: "a", Column: models.ColumnDrafts, Position: 0},
			{ID: "ghost", Column: "archived"},
		},
		nil,
	)

	require.Len(t, board.Columns, 3)
	drafts := board.Columns[0].Opportunities
	require.Len(t, drafts, 2)
	assert.Equal(t, "a", drafts[0].ID)
	assert.Equal(t, "b", drafts[1].ID)
	assert.Empty(t, board.Columns[1].Opportunities)
	assert.NotNil(t, board.Columns[1].Projects)
}

func TestMoveOpportunity_Errors(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.MoveOpportunity(ctx, "missing", models.MoveRequest{Column: models.ColumnDrafts})
	assert.ErrorIs(t, err, ErrOpportunityNotFound)

	o, err := svc.CreateOpportunity(ctx, models.CreateOpportunityRequest{Title: "A"}, "")
	require.NoError(t, err)

	_, err = svc.MoveOpportunity(ctx, o.ID, models.MoveRequest{Column: "archived"})
	assert.ErrorIs(t, err, ErrInvalidColumn)

	moved, err := svc.MoveOpportunity(ctx, o.ID, models.MoveRequest{Column: models.ColumnApproved, Position: -4})
	require.NoError(t, err)
	assert.Equal(t, models.ColumnApproved, moved.Column)
	assert.Equal(t, 0, moved.Position)
}

func TestUpdateOpportunity(t *testing.T) {
	svc, _, _, events := newTestService(t)
	ctx := context.Background()

	o, err := svc.CreateOpportunity(ctx, models.CreateOpportunityRequest{Title: "A"}, "")
	require.NoError(t, err)

	title := "Siding and windows"
	promo := "spring-refresh"
	updated, err := svc.UpdateOpportunity(ctx, o.ID, models.UpdateOpportunityRequest{
		Title:       &title,
		Operators:   []models.Operator{models.OperatorOr},
		PromotionID: &promo,
	})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, []models.Operator{models.OperatorOr}, updated.Operators)
	require.NotNil(t, updated.Promotion)
	assert.Equal(t, "spring-refresh", updated.Promotion.ID)

	none := ""
	updated, err = svc.UpdateOpportunity(ctx, o.ID, models.UpdateOpportunityRequest{PromotionID: &none})
	require.NoError(t, err)
	assert.Nil(t, updated.Promotion)
	assert.Equal(t, title, updated.Title)

	empty := " "
	_, err = svc.UpdateOpportunity(ctx, o.ID, models.UpdateOpportunityRequest{Title: &empty})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpdateOpportunity(ctx, "missing", models.UpdateOpportunityRequest{Title: &title})
	assert.ErrorIs(t, err, ErrOpportunityNotFound)

	assert.Equal(t, []models.EventType{
		models.EventOpportunityCreated,
		models.EventOpportunityUpdated,
		models.EventOpportunityUpdated,
	}, events.types())
}

func TestOptions_PriceDetails(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	o, err := svc.CreateOpportunity(ctx, models.CreateOpportunityRequest{Title: "A"}, "")
	require.NoError(t, err)

	opt, err := svc.AddOption(ctx, o.ID, models.OptionRequest{
		Title:           "Vinyl siding",
		Price:           10000,
		FinancingPlanID: "fixed-60",
	})
	require.NoError(t, err)

	require.NotNil(t, opt.Financing)
	assert.Equal(t, 6.99, opt.Financing.APR)
	assert.Equal(t, 60, opt.Financing.Months)
	assert.Equal(t, 198, opt.Financing.MonthlyPayment)
	require.NotNil(t, opt.CalculatedPriceDetails)
	assert.Equal(t, 10000.0, opt.CalculatedPriceDetails.NetPrice)
	assert.Equal(t, 198, opt.CalculatedPriceDetails.MonthlyPayment)
	assert.NotNil(t, opt.Materials)

	// a percent promotion lowers the net price
	updated, err := svc.UpdateOption(ctx, o.ID, opt.ID, models.OptionRequest{
		Title:       "Vinyl siding",
		Price:       10000,
		PromotionID: "spring-refresh",
	})
	require.NoError(t, err)
	assert.Equal(t, 1000.0, updated.CalculatedPriceDetails.Discount)
	assert.Equal(t, 9000.0, updated.CalculatedPriceDetails.NetPrice)
	assert.Nil(t, updated.Financing)

	got, err := svc.GetOpportunity(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Options, 1)
	assert.Equal(t, 9000.0, got.Options[0].CalculatedPriceDetails.NetPrice)
}

func TestOptions_InheritOpportunityPromotion(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	o, err := svc.CreateOpportunity(ctx, models.CreateOpportunityRequest{Title: "A", PromotionID: "window-bundle"}, "")
	require.NoError(t, err)

	opt, err := svc.AddOption(ctx, o.ID, models.OptionRequest{Title: "Windows", Price: 8000})
	require.NoError(t, err)
	require.NotNil(t, opt.Promotion)
	assert.Equal(t, "window-bundle", opt.Promotion.ID)
	assert.Equal(t, 7500.0, opt.CalculatedPriceDetails.NetPrice)
}

func TestOptions_Errors(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddOption(ctx, "missing", models.OptionRequest{Title: "x"})
	assert.ErrorIs(t, err, ErrOpportunityNotFound)

	o, err := svc.CreateOpportunity(ctx, models.CreateOpportunityRequest{Title: "A"}, "")
	require.NoError(t, err)

	_, err = svc.AddOption(ctx, o.ID, models.OptionRequest{Title: ""})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.AddOption(ctx, o.ID, models.OptionRequest{Title: "x", Price: -1})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.AddOption(ctx, o.ID, models.OptionRequest{Title: "x", FinancingPlanID: "nope"})
	assert.ErrorIs(t, err, ErrFinancingPlanNotFound)

	_, err = svc.UpdateOption(ctx, o.ID, "missing", models.OptionRequest{Title: "x"})
	assert.ErrorIs(t, err, ErrOptionNotFound)

	assert.ErrorIs(t, svc.DeleteOption(ctx, o.ID, "missing"), ErrOptionNotFound)
}

func TestDeleteOpportunity(t *testing.T) {
	svc, _, _, events := newTestService(t)
	ctx := context.Background()

	o, err := svc.CreateOpportunity(ctx, models.CreateOpportunityRequest{Title: "A"}, "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteOpportunity(ctx, o.ID))
	assert.ErrorIs(t, svc.DeleteOpportunity(ctx, o.ID), ErrOpportunityNotFound)

	_, err = svc.GetOpportunity(ctx, o.ID)
	assert.ErrorIs(t, err, ErrOpportunityNotFound)
	assert.Contains(t, events.types(), models.EventOpportunityDeleted)
}

func TestProjects(t *testing.T) {
	svc, _, _, events := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreateProject(ctx, models.CreateProjectRequest{Title: "Deck", Type: "outdoor"})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectDraft, p.Status)
	assert.Equal(t, models.ColumnDrafts, p.Column)

	_, err = svc.CreateProject(ctx, models.CreateProjectRequest{Title: "Deck", Status: "paused"})
	assert.ErrorIs(t, err, ErrValidation)

	moved, err := svc.MoveProject(ctx, p.ID, models.MoveRequest{Column: models.ColumnPresented})
	require.NoError(t, err)
	assert.Equal(t, models.ColumnPresented, moved.Column)

	_, err = svc.MoveProject(ctx, "missing", models.MoveRequest{Column: models.ColumnPresented})
	assert.ErrorIs(t, err, ErrProjectNotFound)

	list, err := svc.ListProjects(ctx, models.ColumnPresented)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.ListProjects(ctx, "archived")
	assert.ErrorIs(t, err, ErrInvalidColumn)

	assert.Equal(t, []models.EventType{models.EventProjectCreated, models.EventProjectMoved}, events.types())
}

func TestListOpportunities_Empty(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	list, err := svc.ListOpportunities(context.Background(), models.OpportunityFilters{})
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}
