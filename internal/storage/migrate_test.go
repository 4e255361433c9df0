package storage

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_team.sql":  {Data: []byte("SELECT 2")},
		"001_board.sql": {Data: []byte("SELECT 1")},
		"003_next.sql":  {Data: []byte("SELECT 3")},
		"README.md":     {Data: []byte("docs")},
		"old/000.sql":   {Data: []byte("SELECT 0")},
	}

	pending, err := pendingMigrations(fsys, map[string]bool{"002_team.sql": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"001_board.sql", "003_next.sql"}, pending)
}

func TestEmbeddedMigrations(t *testing.T) {
	pending, err := pendingMigrations(Migrations(), map[string]bool{})
	require.NoError(t, err)
	assert.Equal(t, []string{"001_board.sql", "002_team.sql", "003_hover_tokens.sql"}, pending)
}
