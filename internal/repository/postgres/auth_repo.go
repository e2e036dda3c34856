// internal/repository/postgres/auth_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"questa-service/internal/domain/auth"
	xerrors "questa-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AuthRepository struct {
	db *pgxpool.Pool
}

func NewAuthRepository(db *pgxpool.Pool) *AuthRepository {
	return &AuthRepository{db: db}
}

// ========== Identity Methods ==========

// FindIdentityByEmail retrieves an identity by email
func (r *AuthRepository) FindIdentityByEmail(ctx context.Context, email string) (*auth.Identity, string, error) {
	query := `
		SELECT id, email, email_verified, email_verified_at,
		       password_hash, status, metadata, last_login,
		       created_at, updated_at
		FROM auth_identities
		WHERE LOWER(email) = LOWER($1)
	`
	return r.scanIdentity(r.db.QueryRow(ctx, query, email))
}

// FindIdentityByID retrieves an identity by ID
func (r *AuthRepository) FindIdentityByID(ctx context.Context, id string) (*auth.Identity, error) {
	query := `
		SELECT id, email, email_verified, email_verified_at,
		       password_hash, status, metadata, last_login,
		       created_at, updated_at
		FROM auth_identities
		WHERE id = $1
	`
	identity, _, err := r.scanIdentity(r.db.QueryRow(ctx, query, id))
	return identity, err
}

// ExistsByEmail reports whether an identity already uses the email
func (r *AuthRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM auth_identities WHERE LOWER(email) = LOWER($1))`,
		email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// CreateIdentity inserts a new identity with its password hash
func (r *AuthRepository) CreateIdentity(ctx context.Context, identity *auth.Identity, passwordHash string) error {
	metadata, err := json.Marshal(identity.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO auth_identities (id, email, password_hash, status, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query,
		identity.ID, identity.Email, passwordHash, identity.Status, metadata,
	).Scan(&identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}
	return nil
}

// MarkEmailVerified flags the identity email as confirmed and activates it
func (r *AuthRepository) MarkEmailVerified(ctx context.Context, id string) error {
	query := `
		UPDATE auth_identities
		SET email_verified = TRUE,
		    email_verified_at = $1,
		    status = 'active',
		    updated_at = $1
		WHERE id = $2
	`
	tag, err := r.db.Exec(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// UpdateIdentityLastLogin updates the last login timestamp
func (r *AuthRepository) UpdateIdentityLastLogin(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE auth_identities SET last_login = $1 WHERE id = $2`,
		time.Now(), id,
	)
	return err
}

func (r *AuthRepository) scanIdentity(row pgx.Row) (*auth.Identity, string, error) {
	var identity auth.Identity
	var passwordHash string
	var metadata []byte

	err := row.Scan(
		&identity.ID, &identity.Email, &identity.EmailVerified, &identity.EmailVerifiedAt,
		&passwordHash, &identity.Status, &metadata, &identity.LastLogin,
		&identity.CreatedAt, &identity.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", xerrors.ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to find identity: %w", err)
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &identity.Metadata); err != nil {
			return nil, "", fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &identity, passwordHash, nil
}
