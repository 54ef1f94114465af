package repository

import (
	"context"

	"authplane/backend/internal/user/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByEmail returns the non-deleted user with the given email, including
	// the password hash. Callers compare credentials and must not persist it back.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// GetActiveByEmailAndID returns the active, non-deleted user matching both
	// email and id, with credential material stripped.
	GetActiveByEmailAndID(ctx context.Context, email, id string) (*domain.User, error)
	// ExistsByEmail reports whether any user row, soft-deleted included, holds the email.
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, u *domain.User) error
	UpdateStatus(ctx context.Context, id string, status domain.UserStatus) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SoftDelete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
}
