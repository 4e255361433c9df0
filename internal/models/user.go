package models

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// User is a hosted backend auth user
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone,omitempty"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// TeamRole returns the team role stored in the user's app metadata,
// falling back to user metadata
func (u *User) TeamRole() Role {
	if u == nil {
		return ""
	}
	for _, meta := range []map[string]any{u.AppMetadata, u.UserMetadata} {
		if role, ok := meta["role"].(string); ok && role != "" {
			return Role(role)
		}
	}
	return ""
}

// HasRole checks if the user holds one of the given roles
func (u *User) HasRole(roles ...Role) bool {
	role := u.TeamRole()
	for _, r := range roles {
		if role == r {
			return true
		}
	}
	return false
}

// Session is a hosted backend auth session
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// SignUpRequest is the body of the sign-up endpoint
type SignUpRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// GenerateState creates a cryptographically random 48-char hex token
func GenerateState() (string, error) {
	bytes := make([]byte, 24)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
