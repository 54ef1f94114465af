package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"authplane/backend/internal/key/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a key repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const keyColumns = `id, encrypted_private_key, public_key, purpose, is_active, created_at, deleted_at`

// GetByID returns the key for id, or nil if not found. Soft-deleted keys are
// returned too; verification of older tokens depends on it.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Key, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM keys WHERE id = $1`, id)
	return scanKey(row)
}

// GetCurrentByPurpose returns the newest active key for the purpose, or nil
// when none exists.
func (r *PostgresRepository) GetCurrentByPurpose(ctx context.Context, purpose domain.KeyPurpose) (*domain.Key, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM keys
		 WHERE purpose = $1 AND is_active AND deleted_at IS NULL
		 ORDER BY created_at DESC
		 LIMIT 1`, purpose)
	return scanKey(row)
}

// Create persists the key. The key must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, k *domain.Key) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO keys (id, encrypted_private_key, public_key, purpose, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		k.ID, k.EncryptedPrivateKey, k.PublicKey, k.Purpose, k.Active, k.CreatedAt)
	return err
}

// DeleteOlderThan removes keys of the purpose created before cutoff and
// returns the number of rows deleted.
func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, purpose domain.KeyPurpose, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM keys WHERE purpose = $1 AND created_at < $2`, purpose, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanKey(row *sql.Row) (*domain.Key, error) {
	var k domain.Key
	var deletedAt sql.NullTime
	err := row.Scan(&k.ID, &k.EncryptedPrivateKey, &k.PublicKey, &k.Purpose,
		&k.Active, &k.CreatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		k.DeletedAt = &t
	}
	k.CreatedAt = k.CreatedAt.UTC()
	return &k, nil
}
