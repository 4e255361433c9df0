package models

import (
	"time"
)

// HoverToken holds a user's Hover OAuth tokens
type HoverToken struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ExpiresWithin reports whether the token expires before now+window
func (t *HoverToken) ExpiresWithin(now time.Time, window time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return t.ExpiresAt.Before(now.Add(window))
}

// HoverStatus is a user's Hover connection as shown to the front-end
type HoverStatus struct {
	Connected    bool       `json:"connected"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Expired      bool       `json:"expired"`
	ExpiringSoon bool       `json:"expiring_soon"`
}
