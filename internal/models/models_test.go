package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperatorValid(t *testing.T) {
	assert.True(t, OperatorAnd.Valid())
	assert.True(t, OperatorOr.Valid())
	assert.False(t, Operator("xor").Valid())
	assert.False(t, Operator("").Valid())
}

func TestUserTeamRole(t *testing.T) {
	u := &User{
		AppMetadata:  map[string]any{"role": "admin"},
		UserMetadata: map[string]any{"role": "sales_rep"},
	}
	assert.Equal(t, RoleAdmin, u.TeamRole())
	assert.True(t, u.HasRole(RoleManager, RoleAdmin))

	u = &User{UserMetadata: map[string]any{"role": "sales_rep"}}
	assert.Equal(t, RoleSalesRep, u.TeamRole())
	assert.False(t, u.HasRole(RoleAdmin))

	var nilUser *User
	assert.Equal(t, Role(""), nilUser.TeamRole())
}

func TestHoverTokenExpiresWithin(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tok := &HoverToken{ExpiresAt: now.Add(10 * time.Minute)}
	assert.True(t, tok.ExpiresWithin(now, 30*time.Minute))
	assert.False(t, tok.ExpiresWithin(now, 5*time.Minute))

	assert.False(t, (&HoverToken{}).ExpiresWithin(now, time.Hour))
}

func TestPromotionIsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)

	assert.True(t, (&Promotion{ExpiresAt: &past}).IsExpired(now))
	assert.False(t, (&Promotion{}).IsExpired(now))

	var p *Promotion
	assert.False(t, p.IsExpired(now))
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	assert.NoError(t, err)
	b, err := GenerateState()
	assert.NoError(t, err)

	assert.Len(t, a, 48)
	assert.NotEqual(t, a, b)
}
