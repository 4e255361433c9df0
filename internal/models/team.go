package models

import (
	"time"
)

// Role is a team member's role within the company account
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleSalesRep Role = "sales_rep"
)

// Valid reports whether the role is known
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleManager || r == RoleSalesRep
}

// TeamMember links a hosted auth user to the company team
type TeamMember struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// InviteRequest is the body of the invite endpoint
type InviteRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
	Role      Role   `json:"role"`
}
