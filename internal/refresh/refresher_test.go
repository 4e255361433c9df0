package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/terra-clan/estimator/internal/models"
	"github.com/terra-clan/estimator/internal/storage"
)

type fakeSource struct {
	mu    sync.Mutex
	seen  []string
	fail  map[string]bool
	calls chan string
}

func (f *fakeSource) Refresh(ctx context.Context, refreshToken string) (*models.HoverToken, error) {
	f.mu.Lock()
	f.seen = append(f.seen, refreshToken)
	fail := f.fail[refreshToken]
	f.mu.Unlock()

	if f.calls != nil {
		f.calls <- refreshToken
	}
	if fail {
		return nil, errors.New("invalid_grant")
	}
	return &models.HoverToken{
		AccessToken: "new-" + refreshToken,
		ExpiresAt:   time.Now().Add(2 * time.Hour),
	}, nil
}

func seed(t *testing.T, repo *storage.MemoryRepository, userID, refreshToken string, expiresIn time.Duration) {
	t.Helper()
	require.NoError(t, repo.SaveHoverToken(context.Background(), &models.HoverToken{
		UserID:       userID,
		AccessToken:  "old-" + userID,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(expiresIn),
	}))
}

func TestRefreshExpiring_OnlyExpiringTokens(t *testing.T) {
	repo := storage.NewMemoryRepository()
	seed(t, repo, "soon", "r-soon", 5*time.Minute)
	seed(t, repo, "later", "r-later", 3*time.Hour)

	source := &fakeSource{}
	r := NewRefresher(repo, source, time.Hour, 30*time.Minute)

	assert.Equal(t, 1, r.RefreshExpiring(context.Background()))
	assert.Equal(t, []string{"r-soon"}, source.seen)

	tok, err := repo.GetHoverToken(context.Background(), "soon")
	require.NoError(t, err)
	assert.Equal(t, "new-r-soon", tok.AccessToken)
	assert.Equal(t, "r-soon", tok.RefreshToken)

	later, err := repo.GetHoverToken(context.Background(), "later")
	require.NoError(t, err)
	assert.Equal(t, "old-later", later.AccessToken)
}

func TestRefreshExpiring_FailuresAreSkipped(t *testing.T) {
	repo := storage.NewMemoryRepository()
	seed(t, repo, "a", "r-a", time.Minute)
	seed(t, repo, "b", "r-b", 2*time.Minute)

	source := &fakeSource{fail: map[string]bool{"r-a": true}}
	r := NewRefresher(repo, source, time.Hour, 30*time.Minute)

	assert.Equal(t, 1, r.RefreshExpiring(context.Background()))
	assert.ElementsMatch(t, []string{"r-a", "r-b"}, source.seen)

	a, err := repo.GetHoverToken(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "old-a", a.AccessToken)
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := storage.NewMemoryRepository()
	seed(t, repo, "soon", "r-soon", time.Minute)

	source := &fakeSource{calls: make(chan string, 1)}
	r := NewRefresher(repo, source, time.Hour, 30*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case tok := <-source.calls:
		assert.Equal(t, "r-soon", tok)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not run an initial cycle")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestNewRefresher_Defaults(t *testing.T) {
	r := NewRefresher(storage.NewMemoryRepository(), &fakeSource{}, 0, 0)
	assert.Equal(t, 10*time.Minute, r.interval)
	assert.Equal(t, 30*time.Minute, r.window)
}
