package repository

import (
	"context"
	"database/sql"
	"errors"

	"authplane/backend/internal/user/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, email, password, name, role, status, created_at, updated_at, deleted_at`

// GetByID returns the non-deleted user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanUser(row)
}

// GetByEmail returns the non-deleted user with the given email, or nil if not
// found. The returned user includes the password hash.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 AND deleted_at IS NULL`, email)
	return scanUser(row)
}

// GetActiveByEmailAndID returns the active, non-deleted user matching both
// email and id, or nil if no such user exists. Credential material is stripped.
func (r *PostgresRepository) GetActiveByEmailAndID(ctx context.Context, email, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE email = $1 AND id = $2 AND status = $3 AND deleted_at IS NULL`,
		email, id, domain.UserStatusActive)
	u, err := scanUser(row)
	if err != nil || u == nil {
		return nil, err
	}
	return u.Sanitized(), nil
}

// ExistsByEmail reports whether any user row holds the email, soft-deleted
// rows included, so a deleted account still reserves its address.
func (r *PostgresRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Create persists the user to the database. The user must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password, name, role, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.Status, u.CreatedAt, u.UpdatedAt)
	return err
}

// UpdateStatus moves the user to the given lifecycle status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status domain.UserStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET status = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`,
		id, status)
	return err
}

// UpdatePassword replaces the stored password hash.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`,
		id, passwordHash)
	return err
}

// SoftDelete marks the user deleted without removing the row, keeping the
// email reserved.
func (r *PostgresRepository) SoftDelete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`,
		id)
	return err
}

// Restore clears the soft-delete marker.
func (r *PostgresRepository) Restore(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET deleted_at = NULL, updated_at = now() WHERE id = $1 AND deleted_at IS NOT NULL`,
		id)
	return err
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var deletedAt sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.Status,
		&u.CreatedAt, &u.UpdatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		u.DeletedAt = &t
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}
