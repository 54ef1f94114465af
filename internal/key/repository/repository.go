package repository

import (
	"context"
	"time"

	"authplane/backend/internal/key/domain"
)

// Repository defines persistence for signing keys.
type Repository interface {
	// GetByID returns the key for id, soft-deleted rows included, so tokens
	// signed before a retention sweep still resolve their verification key.
	GetByID(ctx context.Context, id string) (*domain.Key, error)
	// GetCurrentByPurpose returns the newest active key for the purpose, or
	// nil when none has been provisioned yet.
	GetCurrentByPurpose(ctx context.Context, purpose domain.KeyPurpose) (*domain.Key, error)
	Create(ctx context.Context, k *domain.Key) error
	// DeleteOlderThan hard-deletes keys of the purpose created before cutoff
	// and returns how many rows went away.
	DeleteOlderThan(ctx context.Context, purpose domain.KeyPurpose, cutoff time.Time) (int64, error)
}
