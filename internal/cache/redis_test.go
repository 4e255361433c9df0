package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/estimator/internal/models"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewStore(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestState_SingleUse(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutState(ctx, "abc", "user-1", time.Minute))

	userID, ok, err := store.ConsumeState(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "user-1", userID)

	_, ok, err = store.ConsumeState(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestState_Expires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutState(ctx, "abc", "user-1", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := store.ConsumeState(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBoardCache(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	gen, err := store.BoardGeneration(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)

	_, ok, err := store.GetBoard(ctx, gen)
	require.NoError(t, err)
	assert.False(t, ok)

	board := &models.Board{
		Columns: []*models.BoardColumn{
			{Column: models.Column{ID: models.ColumnDrafts, Title: "Drafts"},
				Opportunities: []*models.Opportunity{{ID: "o-1", Title: "Roof"}}},
		},
	}
	require.NoError(t, store.SetBoard(ctx, gen, board, time.Minute))

	cached, ok, err := store.GetBoard(ctx, gen)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, cached.Columns, 1)
	assert.Equal(t, "Drafts", cached.Columns[0].Title)
	assert.Equal(t, "o-1", cached.Columns[0].Opportunities[0].ID)

	require.NoError(t, store.InvalidateBoard(ctx))
	next, err := store.BoardGeneration(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)

	_, ok, err = store.GetBoard(ctx, next)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBoardCache_SnapshotOfInvalidatedGenerationIsNotServed(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	gen, err := store.BoardGeneration(ctx)
	require.NoError(t, err)

	// a write lands while the snapshot is being loaded
	require.NoError(t, store.InvalidateBoard(ctx))
	require.NoError(t, store.SetBoard(ctx, gen, &models.Board{}, time.Minute))

	current, err := store.BoardGeneration(ctx)
	require.NoError(t, err)
	_, ok, err := store.GetBoard(ctx, current)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBoardCache_CorruptEntryIsMiss(t *testing.T) {
	store, mr := newTestStore(t)
	require.NoError(t, mr.Set(boardKey(0), "{not json"))

	_, ok, err := store.GetBoard(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(boardKey(0)))
}
