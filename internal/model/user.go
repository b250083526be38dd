package model

import "time"

// Role is the account class a user logs in as.
type Role string

const (
	RoleOperations Role = "operations"
	RoleClient     Role = "client"
	RoleUnassigned Role = "unassigned"
)

// RoleFromFlags maps the legacy is_ops/is_client pair onto a Role.
// Operations wins when both flags are set.
func RoleFromFlags(isOps, isClient bool) Role {
	switch {
	case isOps:
		return RoleOperations
	case isClient:
		return RoleClient
	default:
		return RoleUnassigned
	}
}

// ParseRole accepts the stored role names; anything else is unassigned.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleOperations, RoleClient:
		return Role(s)
	default:
		return RoleUnassigned
	}
}

func (r Role) Valid() bool {
	return r == RoleOperations || r == RoleClient || r == RoleUnassigned
}

type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	Active        bool      `json:"active"`
	Role          Role      `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CanLogin reports whether the user may receive magic login links.
func (u User) CanLogin() bool {
	return u.Active && u.Role != RoleUnassigned
}
