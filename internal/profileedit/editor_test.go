package profileedit

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"questa-service/internal/account"
	"questa-service/internal/domain/auth"
	"questa-service/internal/domain/profile"
	xerrors "questa-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========== Fakes ==========

type fakeAccount struct {
	identity  *auth.Identity
	prof      *profile.Profile
	updateErr error
	updates   []profile.Update
}

func (f *fakeAccount) Identity() *auth.Identity { return f.identity }
func (f *fakeAccount) Profile() *profile.Profile {
	return f.prof.Clone()
}

func (f *fakeAccount) UpdateProfile(ctx context.Context, u profile.Update) error {
	f.updates = append(f.updates, u)
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.prof != nil {
		u.ApplyTo(f.prof)
	}
	return nil
}

type fakeLookupStore struct {
	mu          sync.Mutex
	taken       map[string]bool
	lookupErr   error
	lookupCalls int
}

func (f *fakeLookupStore) GetByID(ctx context.Context, id string) (*profile.Profile, error) {
	return nil, xerrors.ErrNotFound
}

func (f *fakeLookupStore) FindByUsernameExcluding(ctx context.Context, username, excludeID string) (*profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if f.taken[username] {
		return &profile.Profile{ID: "someone-else", Username: username}, nil
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeLookupStore) Insert(ctx context.Context, p *profile.Profile) error { return nil }

func (f *fakeLookupStore) UpdateFields(ctx context.Context, id string, u profile.Update) error {
	return nil
}

type fakeBucket struct {
	removed   []string
	uploaded  []string
	removeErr error
	uploadErr error
}

func (f *fakeBucket) Remove(ctx context.Context, name string) error {
	f.removed = append(f.removed, name)
	return f.removeErr
}

func (f *fakeBucket) Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploaded = append(f.uploaded, name)
	return nil
}

func (f *fakeBucket) PublicURL(name string) string {
	return "https://cdn.test/avatars/" + name
}

// ========== Helpers ==========

type editorFixture struct {
	acct    *fakeAccount
	store   *fakeLookupStore
	bucket  *fakeBucket
	notices *account.NoticeLog
	editor  *Editor
}

func newEditorFixture(t *testing.T, p *profile.Profile) *editorFixture {
	t.Helper()
	f := &editorFixture{
		acct: &fakeAccount{
			identity: &auth.Identity{ID: "id-1"},
			prof:     p,
		},
		store:   &fakeLookupStore{taken: map[string]bool{}},
		bucket:  &fakeBucket{},
		notices: &account.NoticeLog{},
	}
	f.editor = NewEditor(f.acct, f.store, f.bucket, f.notices, nil)
	return f
}

func currentProfile() *profile.Profile {
	return &profile.Profile{
		ID:          "id-1",
		Username:    "neo",
		DisplayName: sql.NullString{String: "Neo", Valid: true},
		Bio:         sql.NullString{String: "the one", Valid: true},
	}
}

func pngUpload(size int64) *AvatarUpload {
	return &AvatarUpload{
		Filename:    "face.png",
		ContentType: "image/png",
		Size:        size,
		Content:     strings.NewReader("not-really-a-png"),
	}
}

// ========== Draft ==========

func TestNewEditor_SeedsDraftFromProfile(t *testing.T) {
	f := newEditorFixture(t, currentProfile())

	require.True(t, f.editor.IsOpen())
	require.NoError(t, f.editor.Submit(context.Background()))

	require.Len(t, f.acct.updates, 1)
	u := f.acct.updates[0]
	assert.Equal(t, "neo", *u.Username)
	assert.Equal(t, "Neo", *u.DisplayName)
	assert.Equal(t, "the one", *u.Bio)
	assert.Nil(t, u.AvatarURL)
}

func TestEditor_CloseWithoutSaving(t *testing.T) {
	f := newEditorFixture(t, currentProfile())

	f.editor.SetDisplayName("Changed")
	f.editor.Close()

	assert.False(t, f.editor.IsOpen())
	assert.Empty(t, f.acct.updates)
}

// ========== Username ==========

func TestSubmit_InvalidUsernameStopsBeforeAnyIO(t *testing.T) {
	f := newEditorFixture(t, currentProfile())
	f.editor.SetUsername("x")

	err := f.editor.Submit(context.Background())

	require.ErrorIs(t, err, ErrUsernameLength)
	assert.Zero(t, f.store.lookupCalls)
	assert.Empty(t, f.acct.updates)
	assert.True(t, f.editor.IsOpen())
}

func TestSubmit_UnchangedUsernameSkipsConflictCheck(t *testing.T) {
	f := newEditorFixture(t, currentProfile())
	f.editor.SetDisplayName("Mr. Anderson")

	require.NoError(t, f.editor.Submit(context.Background()))

	assert.Zero(t, f.store.lookupCalls)
	require.Len(t, f.acct.updates, 1)
	assert.Equal(t, "Mr. Anderson", *f.acct.updates[0].DisplayName)
}

func TestSubmit_ChangedUsernameRunsConflictCheck(t *testing.T) {
	f := newEditorFixture(t, currentProfile())
	f.editor.SetUsername("trinity")

	require.NoError(t, f.editor.Submit(context.Background()))

	assert.Equal(t, 1, f.store.lookupCalls)
	require.Len(t, f.acct.updates, 1)
	assert.Equal(t, "trinity", *f.acct.updates[0].Username)
	assert.False(t, f.editor.IsOpen())
}

func TestSubmit_TakenUsernameFailsWithoutCommit(t *testing.T) {
	f := newEditorFixture(t, currentProfile())
	f.store.taken["trinity"] = true
	f.editor.SetUsername("trinity")

	err := f.editor.Submit(context.Background())

	require.ErrorIs(t, err, xerrors.ErrUsernameTaken)
	assert.Empty(t, f.acct.updates)
	assert.True(t, f.editor.IsOpen())

	notices := f.notices.Notices()
	require.NotEmpty(t, notices)
	assert.Equal(t, account.SeverityError, notices[len(notices)-1].Severity)
}

func TestSubmit_LookupFailureSurfaces(t *testing.T) {
	f := newEditorFixture(t, currentProfile())
	f.store.lookupErr = fmt.Errorf("connection reset")
	f.editor.SetUsername("trinity")

	err := f.editor.Submit(context.Background())

	require.Error(t, err)
	assert.NotErrorIs(t, err, xerrors.ErrUsernameTaken)
	assert.Empty(t, f.acct.updates)
}

// ========== Avatar ==========

func TestSubmit_AvatarReplacesPreviousAsset(t *testing.T) {
	p := currentProfile()
	p.AvatarURL = sql.NullString{String: "https://cdn.test/avatars/id-1-100.png", Valid: true}
	f := newEditorFixture(t, p)
	f.editor.AttachAvatar(pngUpload(1024))

	require.NoError(t, f.editor.Submit(context.Background()))

	assert.Equal(t, []string{"id-1-100.png"}, f.bucket.removed)
	require.Len(t, f.bucket.uploaded, 1)
	assert.Regexp(t, `^id-1-\d+\.png$`, f.bucket.uploaded[0])

	require.Len(t, f.acct.updates, 1)
	u := f.acct.updates[0]
	require.NotNil(t, u.AvatarURL)
	assert.Equal(t, "https://cdn.test/avatars/"+f.bucket.uploaded[0], *u.AvatarURL)
}

func TestSubmit_NoPreviousAvatarSkipsRemoval(t *testing.T) {
	f := newEditorFixture(t, currentProfile())
	f.editor.AttachAvatar(pngUpload(1024))

	require.NoError(t, f.editor.Submit(context.Background()))

	assert.Empty(t, f.bucket.removed)
	assert.Len(t, f.bucket.uploaded, 1)
}

func TestSubmit_RemovalFailureIsBestEffort(t *testing.T) {
	p := currentProfile()
	p.AvatarURL = sql.NullString{String: "https://cdn.test/avatars/id-1-100.png", Valid: true}
	f := newEditorFixture(t, p)
	f.bucket.removeErr = fmt.Errorf("object store unavailable")
	f.editor.AttachAvatar(pngUpload(1024))

	require.NoError(t, f.editor.Submit(context.Background()))

	assert.Len(t, f.bucket.uploaded, 1)
	require.Len(t, f.acct.updates, 1)
	assert.NotNil(t, f.acct.updates[0].AvatarURL)
}

func TestSubmit_InvalidAvatarAbortsWholeUpdate(t *testing.T) {
	f := newEditorFixture(t, currentProfile())
	f.editor.SetDisplayName("Mr. Anderson")
	f.editor.AttachAvatar(&AvatarUpload{
		Filename:    "face.png",
		ContentType: "image/png",
		Size:        MaxAvatarSize + 1,
		Content:     strings.NewReader("x"),
	})

	err := f.editor.Submit(context.Background())

	require.ErrorIs(t, err, ErrAvatarTooBig)
	assert.Empty(t, f.bucket.uploaded)
	assert.Empty(t, f.acct.updates)
	assert.True(t, f.editor.IsOpen())
}

func TestSubmit_UploadFailureAbortsWholeUpdate(t *testing.T) {
	f := newEditorFixture(t, currentProfile())
	f.bucket.uploadErr = fmt.Errorf("disk full")
	f.editor.SetDisplayName("Mr. Anderson")
	f.editor.AttachAvatar(pngUpload(1024))

	err := f.editor.Submit(context.Background())

	require.Error(t, err)
	assert.Empty(t, f.acct.updates, "text fields must not be committed when the upload fails")
	assert.True(t, f.editor.IsOpen())
}

func TestSubmit_NoAvatarLeavesURLOutOfUpdate(t *testing.T) {
	p := currentProfile()
	p.AvatarURL = sql.NullString{String: "https://cdn.test/avatars/id-1-100.png", Valid: true}
	f := newEditorFixture(t, p)
	f.editor.SetBio("still the one")

	require.NoError(t, f.editor.Submit(context.Background()))

	assert.Empty(t, f.bucket.removed)
	require.Len(t, f.acct.updates, 1)
	assert.Nil(t, f.acct.updates[0].AvatarURL)
}

// ========== Commit ==========

func TestSubmit_RequiresSignedInIdentity(t *testing.T) {
	f := newEditorFixture(t, currentProfile())
	f.acct.identity = nil

	err := f.editor.Submit(context.Background())

	assert.ErrorIs(t, err, xerrors.ErrNotAuthenticated)
	assert.True(t, f.editor.IsOpen())
}

func TestSubmit_CommitFailureKeepsEditorOpen(t *testing.T) {
	f := newEditorFixture(t, currentProfile())
	f.acct.updateErr = fmt.Errorf("row storage unavailable")
	f.editor.SetDisplayName("Mr. Anderson")

	err := f.editor.Submit(context.Background())

	require.Error(t, err)
	assert.True(t, f.editor.IsOpen())
}

func TestSubmit_SuccessFiresCallbackAndCloses(t *testing.T) {
	f := newEditorFixture(t, currentProfile())
	fired := 0
	f.editor.OnProfileUpdate = func() { fired++ }
	f.editor.SetBio("updated")

	require.NoError(t, f.editor.Submit(context.Background()))

	assert.Equal(t, 1, fired)
	assert.False(t, f.editor.IsOpen())
}
