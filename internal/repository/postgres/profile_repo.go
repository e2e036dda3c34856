// internal/repository/postgres/profile_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"questa-service/internal/domain/profile"
	xerrors "questa-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type ProfileRepository struct {
	db *pgxpool.Pool
}

func NewProfileRepository(db *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByID retrieves a profile row by identity id
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*profile.Profile, error) {
	query := `
		SELECT id, username, display_name, avatar_url, bio, coins,
		       created_at, updated_at
		FROM profiles
		WHERE id = $1
	`
	return r.scanProfile(r.db.QueryRow(ctx, query, id))
}

// FindByUsernameExcluding finds a row holding the username under a different
// identity. xerrors.ErrNotFound means the username is free.
func (r *ProfileRepository) FindByUsernameExcluding(ctx context.Context, username, excludeID string) (*profile.Profile, error) {
	query := `
		SELECT id, username, display_name, avatar_url, bio, coins,
		       created_at, updated_at
		FROM profiles
		WHERE username = $1 AND id <> $2
	`
	return r.scanProfile(r.db.QueryRow(ctx, query, username, excludeID))
}

// Insert creates a profile row. The username unique constraint is the
// authoritative conflict signal and maps to xerrors.ErrUsernameTaken.
func (r *ProfileRepository) Insert(ctx context.Context, p *profile.Profile) error {
	query := `
		INSERT INTO profiles (id, username, display_name, avatar_url, bio, coins)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		p.ID, p.Username, p.DisplayName, p.AvatarURL, p.Bio, p.Coins,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return xerrors.ErrUsernameTaken
		}
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

// UpdateFields writes only the submitted fields of a partial update.
func (r *ProfileRepository) UpdateFields(ctx context.Context, id string, u profile.Update) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1

	appendSet := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}

	if u.Username != nil {
		appendSet("username", *u.Username)
	}
	if u.DisplayName != nil {
		appendSet("display_name", nullable(*u.DisplayName))
	}
	if u.AvatarURL != nil {
		appendSet("avatar_url", nullable(*u.AvatarURL))
	}
	if u.Bio != nil {
		appendSet("bio", nullable(*u.Bio))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = now()")

	query := fmt.Sprintf("UPDATE profiles SET %s WHERE id = $%d", strings.Join(sets, ", "), idx)
	args = append(args, id)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return xerrors.ErrUsernameTaken
		}
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *ProfileRepository) scanProfile(row pgx.Row) (*profile.Profile, error) {
	var p profile.Profile
	err := row.Scan(
		&p.ID, &p.Username, &p.DisplayName, &p.AvatarURL, &p.Bio, &p.Coins,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
