package domain

import (
	"errors"
	"time"
)

// User is the core user entity. PasswordHash is only populated by lookups
// that explicitly request credentials and must never leave the service layer.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         UserRole
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time // nil when not soft-deleted
}

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// UserStatus is the account lifecycle: registration creates an inactive
// account, email verification activates it, and moderation may block it.
// Only active users can log in.
type UserStatus string

const (
	UserStatusInactive UserStatus = "inactive"
	UserStatusActive   UserStatus = "active"
	UserStatusBlocked  UserStatus = "blocked"
)

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Name == "" {
		return errors.New("name is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if u.Role == "" {
		u.Role = UserRoleUser
	}
	if u.Status == "" {
		u.Status = UserStatusInactive
	}
	return nil
}

// Sanitized returns a copy with credential material removed, safe to hand to
// transports and session metadata.
func (u *User) Sanitized() *User {
	out := *u
	out.PasswordHash = ""
	return &out
}
