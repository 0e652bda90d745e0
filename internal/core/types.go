package core

import "time"

// Role identifies the authorization role carried by a user and its tokens.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether the role is one the platform knows about.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// User is a registered platform account.
type User struct {
	ID           string    `json:"id" yaml:"id"`
	Email        string    `json:"email" yaml:"email"`
	Name         string    `json:"name,omitempty" yaml:"name,omitempty"`
	Role         Role      `json:"role" yaml:"role"`
	PasswordHash string    `json:"-" yaml:"-"`
	CreatedAt    time.Time `json:"createdAt" yaml:"createdAt"`
}

// RateBucket is the fixed-window counter kept per client key.
// Count reflects requests received within [WindowResetAt-window, WindowResetAt).
type RateBucket struct {
	ClientKey     string    `json:"clientKey" yaml:"clientKey"`
	Count         int       `json:"count" yaml:"count"`
	WindowResetAt time.Time `json:"windowResetAt" yaml:"windowResetAt"`
}
