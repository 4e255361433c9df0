package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/estimator/internal/board"
	"github.com/terra-clan/estimator/internal/cache"
	"github.com/terra-clan/estimator/internal/catalog"
	"github.com/terra-clan/estimator/internal/models"
	"github.com/terra-clan/estimator/internal/storage"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		apiURL, apiToken, apiTimeout = "", "", 0
	})

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPaymentCommand(t *testing.T) {
	out, err := execute(t, "payment", "10000", "--apr", "6.99", "--months", "60", "--api", "")
	require.NoError(t, err)
	assert.Equal(t, "$198/mo for 60 months at 6.99% APR\n", out)
}

func TestPaymentCommand_InvalidPrincipal(t *testing.T) {
	_, err := execute(t, "payment", "lots", "--api", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid principal")
}

func TestBoardCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/board", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": models.Board{Columns: []*models.BoardColumn{{
				Column:        models.Column{ID: models.ColumnDrafts, Title: "Drafts"},
				Opportunities: []*models.Opportunity{{ID: "o-1", Title: "Roof", Column: models.ColumnDrafts}},
			}}},
		})
	}))
	defer srv.Close()

	out, err := execute(t, "board", "--api", srv.URL, "--token", "tok")
	require.NoError(t, err)
	assert.Contains(t, out, "COLUMN")
	assert.Contains(t, out, "Roof")
}

func TestBoardCommand_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := execute(t, "board", "--api", srv.URL, "--timeout", "50ms")
	require.Error(t, err)
}

func TestSeedFixtures(t *testing.T) {
	loader := catalog.NewLoader()
	require.NoError(t, loader.LoadFromDir("../../catalog"))

	repo := storage.NewMemoryRepository()
	svc := board.NewService(repo, loader, nil, nil, 0)

	opportunities, projects, err := seedFixtures(t.Context(), svc, loader.Fixtures())
	require.NoError(t, err)
	assert.Equal(t, len(loader.Fixtures().Opportunities), opportunities)
	assert.Equal(t, len(loader.Fixtures().Projects), projects)

	b, err := svc.Board(t.Context())
	require.NoError(t, err)

	var total int
	for _, col := range b.Columns {
		for _, o := range col.Opportunities {
			total++
			for _, opt := range o.Options {
				assert.NotNil(t, opt.CalculatedPriceDetails, opt.Title)
			}
		}
	}
	assert.Equal(t, opportunities, total)
}

func TestSeedFixtures_InvalidatesBoardCache(t *testing.T) {
	loader := catalog.NewLoader()
	require.NoError(t, loader.LoadFromDir("../../catalog"))

	mr := miniredis.RunT(t)
	store, err := cache.NewStore(t.Context(), mr.Addr(), "", 0)
	require.NoError(t, err)
	defer store.Close()

	svc := board.NewService(storage.NewMemoryRepository(), loader, store, nil, time.Minute)

	// A server rendered the empty board before seeding
	before, err := svc.Board(t.Context())
	require.NoError(t, err)
	genBefore, err := store.BoardGeneration(t.Context())
	require.NoError(t, err)

	opportunities, _, err := seedFixtures(t.Context(), svc, loader.Fixtures())
	require.NoError(t, err)

	genAfter, err := store.BoardGeneration(t.Context())
	require.NoError(t, err)
	assert.Greater(t, genAfter, genBefore)

	after, err := svc.Board(t.Context())
	require.NoError(t, err)

	count := func(b *models.Board) int {
		var n int
		for _, col := range b.Columns {
			n += len(col.Opportunities)
		}
		return n
	}
	assert.Zero(t, count(before))
	assert.Equal(t, opportunities, count(after))
}
