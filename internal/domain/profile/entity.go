// internal/domain/profile/entity.go
package profile

import (
	"database/sql"
	"time"
)

// Profile is the application-owned record of user-visible attributes,
// keyed by identity id. Every signed-in identity has exactly one row.
type Profile struct {
	ID          string         `json:"id" db:"id"`
	Username    string         `json:"username" db:"username"`
	DisplayName sql.NullString `json:"display_name" db:"display_name"`
	AvatarURL   sql.NullString `json:"avatar_url" db:"avatar_url"`
	Bio         sql.NullString `json:"bio" db:"bio"`
	Coins       int64          `json:"coins" db:"coins"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// Clone returns a copy so callers can hand out snapshots without
// exposing the manager-owned row to mutation.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// Update carries the fields of a partial profile update. Nil pointers are
// "not submitted" and must leave the stored and in-memory values untouched.
type Update struct {
	Username    *string
	DisplayName *string
	AvatarURL   *string
	Bio         *string
}

// IsEmpty reports whether the update carries no fields at all.
func (u Update) IsEmpty() bool {
	return u.Username == nil && u.DisplayName == nil && u.AvatarURL == nil && u.Bio == nil
}

// ApplyTo merges the submitted fields into p, leaving everything else alone.
func (u Update) ApplyTo(p *Profile) {
	if u.Username != nil {
		p.Username = *u.Username
	}
	if u.DisplayName != nil {
		p.DisplayName = sql.NullString{String: *u.DisplayName, Valid: *u.DisplayName != ""}
	}
	if u.AvatarURL != nil {
		p.AvatarURL = sql.NullString{String: *u.AvatarURL, Valid: *u.AvatarURL != ""}
	}
	if u.Bio != nil {
		p.Bio = sql.NullString{String: *u.Bio, Valid: *u.Bio != ""}
	}
}
