// internal/domain/auth/entity.go
package auth

import (
	"database/sql"
	"time"
)

// Identity is the minimal authenticated-user record issued by the identity
// provider. The application layer never mutates it directly.
type Identity struct {
	ID              string                 `json:"id" db:"id"`
	Email           sql.NullString         `json:"email" db:"email"`
	EmailVerified   bool                   `json:"email_verified" db:"email_verified"`
	EmailVerifiedAt sql.NullTime           `json:"email_verified_at" db:"email_verified_at"`
	Status          string                 `json:"status" db:"status"` // active, pending_verification, suspended
	Metadata        map[string]interface{} `json:"metadata" db:"metadata"`
	LastLogin       sql.NullTime           `json:"last_login" db:"last_login"`
	CreatedAt       time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at" db:"updated_at"`
}

// EmailAddress returns the identity email or "" when absent.
func (i *Identity) EmailAddress() string {
	if i != nil && i.Email.Valid {
		return i.Email.String
	}
	return ""
}

// Session is the credential bundle handed to a signed-in caller. The access
// token is the only part the client persists; everything else is derived.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Identity    *Identity `json:"identity"`
}

// EventType enumerates the auth state changes pushed by the provider.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Event is a provider-pushed auth notification. Session is nil for
// SIGNED_OUT; IdentityID is always set so the broker can route it.
type Event struct {
	Type       EventType `json:"type"`
	IdentityID string    `json:"identity_id"`
	Session    *Session  `json:"session,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
