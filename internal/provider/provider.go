// internal/provider/provider.go
package provider

import (
	"context"
	"io"

	"questa-service/internal/domain/auth"
	"questa-service/internal/domain/profile"
)

// Identity is the identity-provider boundary: session retrieval, password
// auth, sign-up with metadata and sign-out. Auth events are pushed through
// the event broker, not returned from these calls.
type Identity interface {
	// GetSession validates a persisted access token and returns the live
	// session, or xerrors.ErrSessionExpired / ErrNotFound when there is none.
	GetSession(ctx context.Context, accessToken string) (*auth.Session, error)

	// GetUser returns the current identity behind an access token.
	GetUser(ctx context.Context, accessToken string) (*auth.Identity, error)

	SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error)

	// SignUp creates a pending identity and sends the confirmation email.
	// Duplicate emails surface as xerrors.ErrAccountExists.
	SignUp(ctx context.Context, params auth.SignUpParams) (*auth.Identity, error)

	SignOut(ctx context.Context, accessToken string) error
}

// ProfileStore is the row-storage boundary over the profiles table.
// Missing rows surface as xerrors.ErrNotFound; username conflicts as
// xerrors.ErrUsernameTaken.
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*profile.Profile, error)
	FindByUsernameExcluding(ctx context.Context, username, excludeID string) (*profile.Profile, error)
	Insert(ctx context.Context, p *profile.Profile) error
	UpdateFields(ctx context.Context, id string, u profile.Update) error
}

// Bucket is the object-storage boundary for avatar assets.
type Bucket interface {
	// Remove deletes an object. Callers replacing an avatar treat a failed
	// remove as best-effort and carry on.
	Remove(ctx context.Context, name string) error
	Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	PublicURL(name string) string
}
