package profileedit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  error
	}{
		{"valid simple", "neo_42", nil},
		{"valid minimum length", "abc", nil},
		{"valid maximum length", strings.Repeat("a", 30), nil},
		{"empty", "", ErrUsernameRequired},
		{"too short", "ab", ErrUsernameLength},
		{"too long", strings.Repeat("a", 31), ErrUsernameLength},
		{"space", "neo smith", ErrUsernameCharset},
		{"hyphen", "neo-smith", ErrUsernameCharset},
		{"unicode", "néo", ErrUsernameCharset},
		{"multibyte over 30 bytes but 20 runes", strings.Repeat("é", 20), ErrUsernameCharset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateUsername_EmptinessWinsOverLength(t *testing.T) {
	// Both rules are violated; the required check must fire first.
	assert.ErrorIs(t, ValidateUsername(""), ErrUsernameRequired)
}

func TestValidateAvatar(t *testing.T) {
	tests := []struct {
		name    string
		upload  AvatarUpload
		wantExt string
		wantErr error
	}{
		{
			name:    "valid png",
			upload:  AvatarUpload{Filename: "me.png", ContentType: "image/png", Size: 1024},
			wantExt: "png",
		},
		{
			name:    "uppercase extension is normalized",
			upload:  AvatarUpload{Filename: "ME.JPG", ContentType: "image/jpeg", Size: 1024},
			wantExt: "jpg",
		},
		{
			name:    "exactly at the size limit",
			upload:  AvatarUpload{Filename: "me.gif", ContentType: "image/gif", Size: MaxAvatarSize},
			wantExt: "gif",
		},
		{
			name:    "not an image",
			upload:  AvatarUpload{Filename: "me.png", ContentType: "application/pdf", Size: 1024},
			wantErr: ErrAvatarNotImage,
		},
		{
			name:    "too big",
			upload:  AvatarUpload{Filename: "me.png", ContentType: "image/png", Size: MaxAvatarSize + 1},
			wantErr: ErrAvatarTooBig,
		},
		{
			name:    "disallowed extension",
			upload:  AvatarUpload{Filename: "me.webp", ContentType: "image/webp", Size: 1024},
			wantErr: ErrAvatarBadExt,
		},
		{
			name:    "no extension",
			upload:  AvatarUpload{Filename: "avatar", ContentType: "image/png", Size: 1024},
			wantErr: ErrAvatarBadExt,
		},
		{
			name:    "mime check precedes size check",
			upload:  AvatarUpload{Filename: "me.png", ContentType: "text/plain", Size: MaxAvatarSize + 1},
			wantErr: ErrAvatarNotImage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, err := ValidateAvatar(&tt.upload)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantExt, ext)
		})
	}
}
