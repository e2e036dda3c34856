package account

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"questa-service/internal/domain/auth"
	"questa-service/internal/domain/profile"
	xerrors "questa-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========== Fakes ==========

type fakeProvider struct {
	mu        sync.Mutex
	sessions  map[string]*auth.Session // token -> session
	signInErr error
	signUpErr error
	signUps   []auth.SignUpParams
	signOuts  []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{sessions: map[string]*auth.Session{}}
}

func (f *fakeProvider) GetSession(ctx context.Context, token string) (*auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[token]; ok {
		return s, nil
	}
	return nil, xerrors.ErrSessionExpired
}

func (f *fakeProvider) GetUser(ctx context.Context, token string) (*auth.Identity, error) {
	s, err := f.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.Identity, nil
}

func (f *fakeProvider) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	for _, s := range f.sessions {
		if s.Identity.EmailAddress() == email {
			return s, nil
		}
	}
	return nil, fmt.Errorf("invalid login credentials")
}

func (f *fakeProvider) SignUp(ctx context.Context, params auth.SignUpParams) (*auth.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signUps = append(f.signUps, params)
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	id := &auth.Identity{ID: "new-id", Status: "pending_verification"}
	id.Email.String, id.Email.Valid = params.Email, true
	return id, nil
}

func (f *fakeProvider) SignOut(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts = append(f.signOuts, token)
	return nil
}

type fakeProfileStore struct {
	mu          sync.Mutex
	rows        map[string]*profile.Profile
	getErr      error
	updateErr   error
	insertCalls int
	lookupCalls int
	updates     []profile.Update

	// blockGet, when set, stalls GetByID until released; getStarted is
	// signalled once the fetch is in flight.
	blockGet   chan struct{}
	getStarted chan struct{}
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{rows: map[string]*profile.Profile{}}
}

func (f *fakeProfileStore) GetByID(ctx context.Context, id string) (*profile.Profile, error) {
	f.mu.Lock()
	started := f.getStarted
	block := f.blockGet
	f.mu.Unlock()

	if started != nil {
		close(started)
		f.mu.Lock()
		f.getStarted = nil
		f.mu.Unlock()
	}
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if p, ok := f.rows[id]; ok {
		return p.Clone(), nil
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeProfileStore) FindByUsernameExcluding(ctx context.Context, username, excludeID string) (*profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls++
	for _, p := range f.rows {
		if p.Username == username && p.ID != excludeID {
			return p.Clone(), nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeProfileStore) Insert(ctx context.Context, p *profile.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	for _, existing := range f.rows {
		if existing.Username == p.Username {
			return xerrors.ErrUsernameTaken
		}
	}
	f.rows[p.ID] = p.Clone()
	return nil
}

func (f *fakeProfileStore) UpdateFields(ctx context.Context, id string, u profile.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	if f.updateErr != nil {
		return f.updateErr
	}
	p, ok := f.rows[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	u.ApplyTo(p)
	return nil
}

// ========== Helpers ==========

func testIdentity(id, email string, verified bool) *auth.Identity {
	identity := &auth.Identity{ID: id, EmailVerified: verified, Status: "active"}
	identity.Email = sql.NullString{String: email, Valid: email != ""}
	return identity
}

func testSession(token string, identity *auth.Identity) *auth.Session {
	return &auth.Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   time.Now().Add(time.Hour),
		Identity:    identity,
	}
}

type fixture struct {
	provider *fakeProvider
	store    *fakeProfileStore
	notices  *NoticeLog
	routes   *RouteLog
	mgr      *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		provider: newFakeProvider(),
		store:    newFakeProfileStore(),
		notices:  &NoticeLog{},
		routes:   &RouteLog{},
	}
	f.mgr = NewManager(Config{
		Provider:  f.provider,
		Profiles:  f.store,
		Notifier:  f.notices,
		Navigator: f.routes,
	})
	return f
}

func (f *fixture) lastNotice(t *testing.T) Notice {
	t.Helper()
	notices := f.notices.Notices()
	require.NotEmpty(t, notices)
	return notices[len(notices)-1]
}

// ========== Session restoration ==========

func TestRestoreSession_NoTokenSettlesUnauthenticated(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.mgr.RestoreSession(context.Background(), ""))

	assert.Equal(t, StateUnauthenticated, f.mgr.State())
	assert.Nil(t, f.mgr.Session())
	assert.False(t, f.mgr.IsLoading())
}

func TestRestoreSession_ExpiredTokenIsBenign(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.mgr.RestoreSession(context.Background(), "stale-token"))

	assert.Equal(t, StateUnauthenticated, f.mgr.State())
	assert.Empty(t, f.notices.Notices())
}

func TestRestoreSession_CreatesMissingProfileOnce(t *testing.T) {
	f := newFixture(t)
	f.provider.sessions["tok"] = testSession("tok", testIdentity("id-1", "neo@example.com", true))

	require.NoError(t, f.mgr.RestoreSession(context.Background(), "tok"))

	require.Equal(t, StateAuthenticated, f.mgr.State())
	p := f.mgr.Profile()
	require.NotNil(t, p)
	assert.Equal(t, "neo", p.Username)
	assert.Equal(t, int64(0), p.Coins)
	assert.Equal(t, 1, f.store.insertCalls)

	// A second restoration returns the same row without creating another.
	second := NewManager(Config{
		Provider: f.provider,
		Profiles: f.store,
		Notifier: &NoticeLog{},
	})
	require.NoError(t, second.RestoreSession(context.Background(), "tok"))
	assert.Equal(t, 1, f.store.insertCalls)
	assert.Equal(t, "neo", second.Profile().Username)
}

func TestRestoreSession_DefaultUsernameFallsBackWithoutEmail(t *testing.T) {
	f := newFixture(t)
	f.provider.sessions["tok"] = testSession("tok", testIdentity("id-1", "", false))

	require.NoError(t, f.mgr.RestoreSession(context.Background(), "tok"))

	p := f.mgr.Profile()
	require.NotNil(t, p)
	assert.NotEmpty(t, p.Username)
}

func TestRestoreSession_DefaultUsernameCollisionRetries(t *testing.T) {
	f := newFixture(t)
	f.store.rows["other"] = &profile.Profile{ID: "other", Username: "neo"}
	f.provider.sessions["tok"] = testSession("tok", testIdentity("id-1", "neo@example.com", true))

	require.NoError(t, f.mgr.RestoreSession(context.Background(), "tok"))

	p := f.mgr.Profile()
	require.NotNil(t, p)
	assert.NotEqual(t, "neo", p.Username)
	assert.NotEmpty(t, p.Username)
}

// ========== Sign in / out ==========

func TestSignIn_SuccessNavigatesHome(t *testing.T) {
	f := newFixture(t)
	f.provider.sessions["tok"] = testSession("tok", testIdentity("id-1", "neo@example.com", false))
	f.store.rows["id-1"] = &profile.Profile{ID: "id-1", Username: "neo"}

	require.NoError(t, f.mgr.SignIn(context.Background(), "neo@example.com", "secret"))

	assert.Equal(t, StateAuthenticated, f.mgr.State())
	assert.Equal(t, []string{"home"}, f.routes.Routes())
}

func TestSignIn_FailureSurfacesProviderMessage(t *testing.T) {
	f := newFixture(t)
	f.provider.signInErr = fmt.Errorf("invalid login credentials")

	err := f.mgr.SignIn(context.Background(), "neo@example.com", "wrong")

	require.Error(t, err)
	assert.Equal(t, StateEstablishing, f.mgr.State())
	notice := f.lastNotice(t)
	assert.Equal(t, SeverityError, notice.Severity)
	assert.Equal(t, "invalid login credentials", notice.Message)
	assert.Empty(t, f.routes.Routes())
}

func TestSignIn_VerifiedEmailNoticeIsOneShot(t *testing.T) {
	f := newFixture(t)
	f.provider.sessions["tok"] = testSession("tok", testIdentity("id-1", "neo@example.com", true))
	f.store.rows["id-1"] = &profile.Profile{ID: "id-1", Username: "neo"}

	require.NoError(t, f.mgr.SignIn(context.Background(), "neo@example.com", "secret"))
	require.NoError(t, f.mgr.SignIn(context.Background(), "neo@example.com", "secret"))

	verified := 0
	for _, n := range f.notices.Notices() {
		if n.Title == "Email verified" {
			verified++
		}
	}
	assert.Equal(t, 1, verified)
}

func TestSignOut_ClearsStateAndNavigatesLogin(t *testing.T) {
	f := newFixture(t)
	f.provider.sessions["tok"] = testSession("tok", testIdentity("id-1", "neo@example.com", false))
	f.store.rows["id-1"] = &profile.Profile{ID: "id-1", Username: "neo"}
	require.NoError(t, f.mgr.SignIn(context.Background(), "neo@example.com", "secret"))

	require.NoError(t, f.mgr.SignOut(context.Background()))

	assert.Equal(t, StateUnauthenticated, f.mgr.State())
	assert.Nil(t, f.mgr.Session())
	assert.Nil(t, f.mgr.Identity())
	assert.Nil(t, f.mgr.Profile())
	assert.Equal(t, []string{"tok"}, f.provider.signOuts)
	assert.Contains(t, f.routes.Routes(), "login")
}

// ========== Sign up ==========

func TestSignUp_TakenUsernameFailsBeforeProviderCall(t *testing.T) {
	f := newFixture(t)
	f.store.rows["other"] = &profile.Profile{ID: "other", Username: "neo"}

	err := f.mgr.SignUp(context.Background(), "neo@example.com", "secret123", "neo")

	require.ErrorIs(t, err, xerrors.ErrUsernameTaken)
	assert.Empty(t, f.provider.signUps)
}

func TestSignUp_ExistingAccountGetsDistinctMessage(t *testing.T) {
	f := newFixture(t)
	f.provider.signUpErr = xerrors.ErrAccountExists

	err := f.mgr.SignUp(context.Background(), "neo@example.com", "secret123", "neo")

	require.ErrorIs(t, err, xerrors.ErrAccountExists)
	assert.Contains(t, f.lastNotice(t).Message, "already exists")
}

func TestSignUp_SuccessNotifiesCheckYourEmail(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.mgr.SignUp(context.Background(), "neo@example.com", "secret123", "neo"))

	require.Len(t, f.provider.signUps, 1)
	params := f.provider.signUps[0]
	assert.Equal(t, "neo", params.Metadata["username"])
	notice := f.lastNotice(t)
	assert.Equal(t, SeverityInfo, notice.Severity)
	assert.Contains(t, notice.Message, "neo@example.com")
}

// ========== Profile updates ==========

func TestUpdateProfile_RequiresIdentity(t *testing.T) {
	f := newFixture(t)

	name := "X"
	err := f.mgr.UpdateProfile(context.Background(), profile.Update{DisplayName: &name})

	assert.ErrorIs(t, err, xerrors.ErrNotAuthenticated)
}

func TestUpdateProfile_MergesOnlySubmittedFields(t *testing.T) {
	f := newFixture(t)
	f.provider.sessions["tok"] = testSession("tok", testIdentity("id-1", "neo@example.com", false))
	f.store.rows["id-1"] = &profile.Profile{
		ID:       "id-1",
		Username: "neo",
		Bio:      sql.NullString{String: "keeper", Valid: true},
		Coins:    7,
	}
	require.NoError(t, f.mgr.RestoreSession(context.Background(), "tok"))

	name := "X"
	require.NoError(t, f.mgr.UpdateProfile(context.Background(), profile.Update{DisplayName: &name}))

	p := f.mgr.Profile()
	assert.Equal(t, "X", p.DisplayName.String)
	assert.Equal(t, "neo", p.Username)
	assert.Equal(t, "keeper", p.Bio.String)
	assert.Equal(t, int64(7), p.Coins)

	require.Len(t, f.store.updates, 1)
	assert.Nil(t, f.store.updates[0].Username)
	assert.Nil(t, f.store.updates[0].Bio)
}

func TestUpdateProfile_FailureLeavesProfileUntouched(t *testing.T) {
	f := newFixture(t)
	f.provider.sessions["tok"] = testSession("tok", testIdentity("id-1", "neo@example.com", false))
	f.store.rows["id-1"] = &profile.Profile{ID: "id-1", Username: "neo"}
	require.NoError(t, f.mgr.RestoreSession(context.Background(), "tok"))
	f.store.updateErr = fmt.Errorf("row storage unavailable")

	name := "X"
	err := f.mgr.UpdateProfile(context.Background(), profile.Update{DisplayName: &name})

	require.Error(t, err)
	assert.False(t, f.mgr.Profile().DisplayName.Valid)
	assert.Equal(t, SeverityError, f.lastNotice(t).Severity)
}

// ========== Auth events ==========

func TestHandleAuthEvent_SignedOutClearsEvenWithFetchInFlight(t *testing.T) {
	f := newFixture(t)
	identity := testIdentity("id-1", "neo@example.com", false)
	f.store.rows["id-1"] = &profile.Profile{ID: "id-1", Username: "neo"}
	f.store.blockGet = make(chan struct{})
	f.store.getStarted = make(chan struct{})

	fetchDone := make(chan struct{})
	go func() {
		defer close(fetchDone)
		f.mgr.HandleAuthEvent(context.Background(), auth.Event{
			Type:       auth.EventSignedIn,
			IdentityID: "id-1",
			Session:    testSession("tok", identity),
		})
	}()

	<-f.store.getStarted

	// Sign-out lands while the profile fetch is still hanging.
	f.mgr.HandleAuthEvent(context.Background(), auth.Event{
		Type:       auth.EventSignedOut,
		IdentityID: "id-1",
	})
	assert.Equal(t, StateUnauthenticated, f.mgr.State())
	assert.Nil(t, f.mgr.Session())
	assert.Nil(t, f.mgr.Profile())

	close(f.store.blockGet)
	<-fetchDone

	// The late-resolving fetch must not resurrect signed-out state.
	assert.Equal(t, StateUnauthenticated, f.mgr.State())
	assert.Nil(t, f.mgr.Profile())
}

func TestRestoreSession_SignedOutDuringFetchKeepsClearedState(t *testing.T) {
	f := newFixture(t)
	f.provider.sessions["tok"] = testSession("tok", testIdentity("id-1", "neo@example.com", false))
	f.store.rows["id-1"] = &profile.Profile{ID: "id-1", Username: "neo"}
	f.store.blockGet = make(chan struct{})
	f.store.getStarted = make(chan struct{})

	restoreDone := make(chan error, 1)
	go func() {
		restoreDone <- f.mgr.RestoreSession(context.Background(), "tok")
	}()

	<-f.store.getStarted

	f.mgr.HandleAuthEvent(context.Background(), auth.Event{
		Type:       auth.EventSignedOut,
		IdentityID: "id-1",
	})
	assert.Equal(t, StateUnauthenticated, f.mgr.State())

	close(f.store.blockGet)
	require.NoError(t, <-restoreDone)

	// The completing restoration must not resurrect the cleared session.
	assert.Equal(t, StateUnauthenticated, f.mgr.State())
	assert.Nil(t, f.mgr.Session())
	assert.Nil(t, f.mgr.Identity())
	assert.Nil(t, f.mgr.Profile())
}

func TestSignIn_SignedOutDuringFetchKeepsClearedState(t *testing.T) {
	f := newFixture(t)
	f.provider.sessions["tok"] = testSession("tok", testIdentity("id-1", "neo@example.com", false))
	f.store.rows["id-1"] = &profile.Profile{ID: "id-1", Username: "neo"}
	f.store.blockGet = make(chan struct{})
	f.store.getStarted = make(chan struct{})

	signInDone := make(chan error, 1)
	go func() {
		signInDone <- f.mgr.SignIn(context.Background(), "neo@example.com", "secret")
	}()

	<-f.store.getStarted

	f.mgr.HandleAuthEvent(context.Background(), auth.Event{
		Type:       auth.EventSignedOut,
		IdentityID: "id-1",
	})

	close(f.store.blockGet)
	require.NoError(t, <-signInDone)

	assert.Equal(t, StateUnauthenticated, f.mgr.State())
	assert.Nil(t, f.mgr.Session())
	assert.Nil(t, f.mgr.Profile())
	assert.Empty(t, f.routes.Routes(), "a displaced sign-in must not navigate home")
}

func TestHandleAuthEvent_TokenRefreshedOnlyUpdatesSession(t *testing.T) {
	f := newFixture(t)
	identity := testIdentity("id-1", "neo@example.com", false)
	f.provider.sessions["tok"] = testSession("tok", identity)
	f.store.rows["id-1"] = &profile.Profile{ID: "id-1", Username: "neo"}
	require.NoError(t, f.mgr.RestoreSession(context.Background(), "tok"))
	before := f.store.lookupCalls

	f.mgr.HandleAuthEvent(context.Background(), auth.Event{
		Type:       auth.EventTokenRefreshed,
		IdentityID: "id-1",
		Session:    testSession("tok2", identity),
	})

	assert.Equal(t, "tok2", f.mgr.Session().AccessToken)
	assert.Equal(t, before, f.store.lookupCalls)
	assert.Equal(t, "neo", f.mgr.Profile().Username)
}

func TestHandleAuthEvent_UserUpdatedRefetchesProfile(t *testing.T) {
	f := newFixture(t)
	identity := testIdentity("id-1", "neo@example.com", false)
	f.provider.sessions["tok"] = testSession("tok", identity)
	f.store.rows["id-1"] = &profile.Profile{ID: "id-1", Username: "neo"}
	require.NoError(t, f.mgr.RestoreSession(context.Background(), "tok"))

	f.store.mu.Lock()
	f.store.rows["id-1"].Username = "renamed"
	f.store.mu.Unlock()

	f.mgr.HandleAuthEvent(context.Background(), auth.Event{
		Type:       auth.EventUserUpdated,
		IdentityID: "id-1",
		Session:    testSession("tok", identity),
	})

	assert.Equal(t, "renamed", f.mgr.Profile().Username)
}

func TestHandleAuthEvent_NullSessionClearsProfile(t *testing.T) {
	f := newFixture(t)
	f.provider.sessions["tok"] = testSession("tok", testIdentity("id-1", "neo@example.com", false))
	f.store.rows["id-1"] = &profile.Profile{ID: "id-1", Username: "neo"}
	require.NoError(t, f.mgr.RestoreSession(context.Background(), "tok"))

	f.mgr.HandleAuthEvent(context.Background(), auth.Event{
		Type:       auth.EventUserUpdated,
		IdentityID: "id-1",
	})

	assert.Equal(t, StateUnauthenticated, f.mgr.State())
	assert.Nil(t, f.mgr.Profile())
}

func TestManager_GuardsAgainstUseBeforeInit(t *testing.T) {
	mgr := NewManager(Config{})

	err := mgr.RestoreSession(context.Background(), "tok")

	assert.Error(t, err)
}
