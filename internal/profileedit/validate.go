// internal/profileedit/validate.go
package profileedit

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 30

	// MaxAvatarSize is the upload ceiling for avatar images.
	MaxAvatarSize = 2 << 20 // 2 MiB
)

var (
	ErrUsernameRequired = errors.New("username is required")
	ErrUsernameLength   = errors.New("username must be between 3 and 30 characters")
	ErrUsernameCharset  = errors.New("username can only contain letters, numbers and underscores")

	ErrAvatarNotImage = errors.New("avatar must be an image file")
	ErrAvatarTooBig   = errors.New("avatar must be 2 MB or smaller")
	ErrAvatarBadExt   = errors.New("avatar must be a jpg, jpeg, png or gif")
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var allowedAvatarExts = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
}

// ValidateUsername checks the username rules in order, stopping at the
// first violation.
func ValidateUsername(username string) error {
	if username == "" {
		return ErrUsernameRequired
	}
	if n := utf8.RuneCountInString(username); n < usernameMinLen || n > usernameMaxLen {
		return ErrUsernameLength
	}
	if !usernamePattern.MatchString(username) {
		return ErrUsernameCharset
	}
	return nil
}

// ValidateAvatar checks MIME type, size and extension in order and returns
// the normalized extension on success.
func ValidateAvatar(upload *AvatarUpload) (string, error) {
	if !strings.HasPrefix(upload.ContentType, "image/") {
		return "", ErrAvatarNotImage
	}
	if upload.Size > MaxAvatarSize {
		return "", ErrAvatarTooBig
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(upload.Filename), "."))
	if !allowedAvatarExts[ext] {
		return "", ErrAvatarBadExt
	}
	return ext, nil
}
