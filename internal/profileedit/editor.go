// internal/profileedit/editor.go
package profileedit

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"questa-service/internal/account"
	"questa-service/internal/domain/auth"
	"questa-service/internal/domain/profile"
	xerrors "questa-service/internal/pkg/errors"
	"questa-service/internal/provider"

	"go.uber.org/zap"
)

// Account is the slice of the session manager the editor commits through.
type Account interface {
	Identity() *auth.Identity
	Profile() *profile.Profile
	UpdateProfile(ctx context.Context, u profile.Update) error
}

// AvatarUpload is a pending avatar file attached to the draft.
type AvatarUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// Editor drives one profile-editing session: a form draft, validation, the
// username conflict check, the conditional avatar replacement and the final
// conflict-checked commit. Any failure leaves the draft and the editing
// surface untouched.
type Editor struct {
	account  Account
	profiles provider.ProfileStore
	bucket   provider.Bucket
	notifier account.Notifier
	logger   *zap.Logger

	// OnProfileUpdate runs after a fully successful submit.
	OnProfileUpdate func()

	open        bool
	username    string
	displayName string
	bio         string
	avatar      *AvatarUpload
}

// NewEditor opens an editor seeded from the account's current profile.
func NewEditor(acct Account, profiles provider.ProfileStore, bucket provider.Bucket, notifier account.Notifier, logger *zap.Logger) *Editor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Editor{
		account:  acct,
		profiles: profiles,
		bucket:   bucket,
		notifier: notifier,
		logger:   logger,
		open:     true,
	}
	if p := acct.Profile(); p != nil {
		e.username = p.Username
		if p.DisplayName.Valid {
			e.displayName = p.DisplayName.String
		}
		if p.Bio.Valid {
			e.bio = p.Bio.String
		}
	}
	return e
}

func (e *Editor) SetUsername(v string)    { e.username = strings.TrimSpace(v) }
func (e *Editor) SetDisplayName(v string) { e.displayName = v }
func (e *Editor) SetBio(v string)         { e.bio = v }

// AttachAvatar stages a replacement avatar for the next submit.
func (e *Editor) AttachAvatar(upload *AvatarUpload) { e.avatar = upload }

// IsOpen reports whether the editing surface is still up.
func (e *Editor) IsOpen() bool { return e.open }

// Close dismisses the editing surface without saving.
func (e *Editor) Close() { e.open = false }

// Submit runs the whole update workflow. On any failure the editor stays
// open with the draft intact; on success the change is committed, the
// update callback fires and the surface closes.
func (e *Editor) Submit(ctx context.Context) error {
	identity := e.account.Identity()
	if identity == nil {
		e.notifier.Error("Profile update failed", "you must be signed in to update your profile")
		return xerrors.ErrNotAuthenticated
	}

	if err := ValidateUsername(e.username); err != nil {
		e.notifier.Error("Invalid username", err.Error())
		return err
	}

	current := e.account.Profile()

	if current == nil || e.username != current.Username {
		if err := e.checkUsernameFree(ctx, identity.ID); err != nil {
			return err
		}
	}

	var avatarURL *string
	if e.avatar != nil {
		url, err := e.replaceAvatar(ctx, identity.ID, current)
		if err != nil {
			return err
		}
		avatarURL = &url
	}

	update := profile.Update{
		Username:    &e.username,
		DisplayName: &e.displayName,
		Bio:         &e.bio,
		AvatarURL:   avatarURL,
	}
	if err := e.account.UpdateProfile(ctx, update); err != nil {
		// The account manager already surfaced the message.
		return err
	}

	if e.OnProfileUpdate != nil {
		e.OnProfileUpdate()
	}
	e.open = false
	return nil
}

func (e *Editor) checkUsernameFree(ctx context.Context, identityID string) error {
	_, err := e.profiles.FindByUsernameExcluding(ctx, e.username, identityID)
	if err == nil {
		e.notifier.Error("Username taken", xerrors.ErrUsernameTaken.Error())
		return xerrors.ErrUsernameTaken
	}
	if xerrors.Is(err, xerrors.ErrNotFound) {
		return nil
	}
	e.notifier.Error("Profile update failed", err.Error())
	return err
}

// replaceAvatar validates the pending upload, best-effort deletes the
// previous asset and uploads the new one, returning its public URL.
func (e *Editor) replaceAvatar(ctx context.Context, identityID string, current *profile.Profile) (string, error) {
	ext, err := ValidateAvatar(e.avatar)
	if err != nil {
		e.notifier.Error("Invalid avatar", err.Error())
		return "", err
	}

	if current != nil && current.AvatarURL.Valid {
		previous := path.Base(current.AvatarURL.String)
		if err := e.bucket.Remove(ctx, previous); err != nil {
			// Orphaned blobs are acceptable; the row only ever points at
			// the newest asset.
			e.logger.Warn("failed to remove previous avatar",
				zap.String("object", previous),
				zap.Error(err),
			)
		}
	}

	name := fmt.Sprintf("%s-%d.%s", identityID, time.Now().Unix(), ext)
	if err := e.bucket.Upload(ctx, name, e.avatar.Content, e.avatar.Size, e.avatar.ContentType); err != nil {
		e.notifier.Error("Avatar upload failed", err.Error())
		return "", err
	}

	return e.bucket.PublicURL(name), nil
}
