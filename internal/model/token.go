package model

import (
	"strings"
	"time"
)

// Role is the authorization role of a principal.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole maps a raw header or claim value to a Role. Unknown values become RoleUser.
func ParseRole(s string) Role {
	if strings.EqualFold(strings.TrimSpace(s), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleUser
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role"`
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanAccess reports whether the principal may read data owned by userID.
func (p Principal) CanAccess(userID string) bool {
	return p.IsAdmin() || p.UserID == userID
}

// Session contains the data stored with a session token.
type Session struct {
	Principal
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
