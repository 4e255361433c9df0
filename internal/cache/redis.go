// Package cache keeps short-lived state in Redis: OAuth state values and the
// board snapshot.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/estimator/internal/models"
)

const (
	statePrefix   = "estimator:oauth_state:"
	boardPrefix   = "estimator:board:"
	generationKey = "estimator:board:generation"
)

// boardKey names the snapshot for one board generation. Snapshots of older
// generations are never read again and expire with their TTL.
func boardKey(gen int64) string {
	return fmt.Sprintf("%s%d", boardPrefix, gen)
}

// Store implements the state store and the board cache on Redis
type Store struct {
	client *redis.Client
}

// NewStore creates a Redis-backed store and verifies connectivity
func NewStore(ctx context.Context, address, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{client: client}, nil
}

// Client exposes the underlying Redis client
func (s *Store) Client() *redis.Client {
	return s.client
}

// PutState records an OAuth state value owned by a user
func (s *Store) PutState(ctx context.Context, state, userID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, statePrefix+state, userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store oauth state: %w", err)
	}
	return nil
}

// ConsumeState returns the user that owns a state value and deletes it.
// A state can be consumed only once.
func (s *Store) ConsumeState(ctx context.Context, state string) (string, bool, error) {
	userID, err := s.client.GetDel(ctx, statePrefix+state).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	return userID, true, nil
}

// BoardGeneration returns the current board generation. It starts at 0 and
// moves forward on every InvalidateBoard.
func (s *Store) BoardGeneration(ctx context.Context) (int64, error) {
	gen, err := s.client.Get(ctx, generationKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read board generation: %w", err)
	}
	return gen, nil
}

// GetBoard returns the cached snapshot of generation gen if present
func (s *Store) GetBoard(ctx context.Context, gen int64) (*models.Board, bool, error) {
	key := boardKey(gen)
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read board cache: %w", err)
	}

	var board models.Board
	if err := json.Unmarshal(data, &board); err != nil {
		// A corrupt entry is dropped and treated as a miss
		slog.Warn("discarding unreadable board cache entry", "generation", gen, "error", err)
		s.client.Del(ctx, key)
		return nil, false, nil
	}
	return &board, true, nil
}

// SetBoard caches a snapshot loaded while gen was current. A snapshot for a
// generation that has since been invalidated is stored under a key no reader
// will ask for.
func (s *Store) SetBoard(ctx context.Context, gen int64, board *models.Board, ttl time.Duration) error {
	data, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("failed to marshal board: %w", err)
	}

	if err := s.client.Set(ctx, boardKey(gen), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write board cache: %w", err)
	}
	return nil
}

// InvalidateBoard moves the board to a new generation
func (s *Store) InvalidateBoard(ctx context.Context) error {
	if err := s.client.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate board cache: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}
