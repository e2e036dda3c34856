// internal/account/manager.go
package account

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"questa-service/internal/domain/auth"
	"questa-service/internal/domain/profile"
	"questa-service/internal/events"
	xerrors "questa-service/internal/pkg/errors"
	"questa-service/internal/provider"

	"go.uber.org/zap"
)

// State is the session lifecycle of a manager.
type State string

const (
	StateEstablishing    State = "establishing"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
)

// Config wires a Manager. Provider, Profiles, Notifier and Logger are
// required; Broker and Navigator are optional (a nil Navigator means no
// view changes, a nil Broker means no event subscription).
type Config struct {
	Provider           provider.Identity
	Profiles           provider.ProfileStore
	Broker             *events.Broker
	Notifier           Notifier
	Navigator          Navigator
	Logger             *zap.Logger
	ConfirmRedirectURL string
}

// Manager owns the authentication session, the derived identity and the
// profile row for one user context. It is the single subscriber to that
// identity's auth events and the only writer of profile state.
type Manager struct {
	cfg         Config
	initialized bool

	mu       sync.Mutex
	state    State
	session  *auth.Session
	identity *auth.Identity
	prof     *profile.Profile

	// gen gates profile-fetch completions: a sign-out bumps it so a fetch
	// started under the old session is dropped instead of resurrecting
	// stale state.
	gen uint64

	verifiedNotified bool

	unsubscribe func()
	done        chan struct{}

	// OnSignedOut, when set, runs after a SIGNED_OUT event has cleared
	// state. The registry uses it to tear the manager down.
	OnSignedOut func()
}

func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Manager{
		cfg:         cfg,
		initialized: cfg.Provider != nil && cfg.Profiles != nil && cfg.Notifier != nil,
		state:       StateEstablishing,
		done:        make(chan struct{}),
	}
}

// ========== Accessors ==========

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsLoading reports whether the one-time session restoration is still
// in flight.
func (m *Manager) IsLoading() bool {
	return m.State() == StateEstablishing
}

func (m *Manager) Session() *auth.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *Manager) Identity() *auth.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

func (m *Manager) Profile() *profile.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prof.Clone()
}

// ========== Subscription ==========

// StartSubscription registers this manager as the identity's single auth
// event subscriber and consumes events until Close or unsubscribe.
func (m *Manager) StartSubscription(identityID string) {
	if err := m.guard(); err != nil || m.cfg.Broker == nil {
		return
	}
	ch, unsub := m.cfg.Broker.Subscribe(identityID)
	m.mu.Lock()
	m.unsubscribe = unsub
	m.mu.Unlock()

	go func() {
		for evt := range ch {
			m.HandleAuthEvent(context.Background(), evt)
		}
	}()
}

// Close unsubscribes and drops all state.
func (m *Manager) Close() {
	m.mu.Lock()
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.clearLocked()
	m.state = StateUnauthenticated
	select {
	case <-m.done:
	default:
		close(m.done)
	}
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Done is closed once the manager has been torn down.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// ========== Operations ==========

// RestoreSession performs the one-time startup restoration: it asks the
// provider for the session behind the persisted token, derives identity and
// profile on success, and otherwise settles in Unauthenticated.
func (m *Manager) RestoreSession(ctx context.Context, accessToken string) error {
	if err := m.guard(); err != nil {
		return err
	}

	if accessToken == "" {
		m.settleUnauthenticated()
		return nil
	}

	sess, err := m.cfg.Provider.GetSession(ctx, accessToken)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrSessionExpired) || xerrors.Is(err, xerrors.ErrNotFound) {
			// No live session is the normal signed-out start.
			m.settleUnauthenticated()
			return nil
		}
		m.cfg.Notifier.Error("Authentication error", err.Error())
		m.settleUnauthenticated()
		return err
	}

	gen := m.adoptSession(sess)
	m.loadProfile(ctx, sess.Identity.ID)

	m.mu.Lock()
	if m.gen == gen {
		m.state = StateAuthenticated
	}
	m.mu.Unlock()
	return nil
}

// SignIn delegates to provider password auth. Success navigates home;
// failure surfaces the provider message verbatim and changes nothing.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	if err := m.guard(); err != nil {
		return err
	}

	sess, err := m.cfg.Provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		m.cfg.Notifier.Error("Sign in failed", err.Error())
		return err
	}

	gen := m.adoptSession(sess)
	m.maybeNotifyVerified(sess.Identity)
	m.loadProfile(ctx, sess.Identity.ID)

	m.mu.Lock()
	adopted := m.gen == gen
	if adopted {
		m.state = StateAuthenticated
	}
	m.mu.Unlock()

	if adopted && m.cfg.Navigator != nil {
		m.cfg.Navigator.GoHome()
	}
	return nil
}

// SignUp pre-checks username availability, then delegates to the provider
// with the username travelling as signup metadata. The normal outcome is a
// "check your email" notice, not a session.
func (m *Manager) SignUp(ctx context.Context, email, password, username string) error {
	if err := m.guard(); err != nil {
		return err
	}

	taken, err := m.usernameTaken(ctx, username, "")
	if err != nil {
		m.cfg.Notifier.Error("Sign up failed", err.Error())
		return err
	}
	if taken {
		m.cfg.Notifier.Error("Sign up failed", xerrors.ErrUsernameTaken.Error())
		return xerrors.ErrUsernameTaken
	}

	_, err = m.cfg.Provider.SignUp(ctx, auth.SignUpParams{
		Email:    email,
		Password: password,
		Metadata: map[string]interface{}{
			"username":     username,
			"display_name": username,
		},
		RedirectURL: m.cfg.ConfirmRedirectURL,
	})
	if err != nil {
		if xerrors.Is(err, xerrors.ErrAccountExists) {
			m.cfg.Notifier.Error("Sign up failed", "an account with this email already exists, try signing in instead")
			return err
		}
		m.cfg.Notifier.Error("Sign up failed", err.Error())
		return err
	}

	m.cfg.Notifier.Info("Check your email", fmt.Sprintf("we sent a confirmation link to %s", email))
	return nil
}

// SignOut tells the provider to end the session and clears local state
// regardless of how that call went, then navigates to the login view.
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.guard(); err != nil {
		return err
	}

	m.mu.Lock()
	token := ""
	if m.session != nil {
		token = m.session.AccessToken
	}
	m.mu.Unlock()

	if token != "" {
		if err := m.cfg.Provider.SignOut(ctx, token); err != nil {
			m.cfg.Logger.Warn("provider sign-out failed", zap.Error(err))
		}
	}

	m.mu.Lock()
	m.clearLocked()
	m.state = StateUnauthenticated
	m.mu.Unlock()

	if m.cfg.Navigator != nil {
		m.cfg.Navigator.GoLogin()
	}
	return nil
}

// UpdateProfile writes the given fields to the profile row and, on success,
// merges exactly those fields into the in-memory profile without re-fetching.
func (m *Manager) UpdateProfile(ctx context.Context, u profile.Update) error {
	if err := m.guard(); err != nil {
		return err
	}

	m.mu.Lock()
	identity := m.identity
	m.mu.Unlock()
	if identity == nil {
		return xerrors.ErrNotAuthenticated
	}

	if err := m.cfg.Profiles.UpdateFields(ctx, identity.ID, u); err != nil {
		m.cfg.Notifier.Error("Profile update failed", err.Error())
		return err
	}

	m.mu.Lock()
	if m.prof != nil {
		u.ApplyTo(m.prof)
	}
	m.mu.Unlock()

	m.cfg.Notifier.Info("Profile updated", "your changes have been saved")
	return nil
}

// HandleAuthEvent reacts to one provider-pushed auth event. SIGNED_OUT
// clears everything synchronously and never triggers a fetch.
func (m *Manager) HandleAuthEvent(ctx context.Context, evt auth.Event) {
	if err := m.guard(); err != nil {
		return
	}

	switch evt.Type {
	case auth.EventSignedOut:
		m.mu.Lock()
		m.clearLocked()
		m.state = StateUnauthenticated
		cb := m.OnSignedOut
		m.mu.Unlock()
		if cb != nil {
			cb()
		}
		return

	default:
		if evt.Session == nil {
			m.mu.Lock()
			m.clearLocked()
			m.state = StateUnauthenticated
			m.mu.Unlock()
			return
		}

		gen := m.adoptSession(evt.Session)
		m.mu.Lock()
		if m.gen == gen {
			m.state = StateAuthenticated
		}
		identityID := ""
		if m.identity != nil {
			identityID = m.identity.ID
		}
		m.mu.Unlock()

		switch evt.Type {
		case auth.EventTokenRefreshed:
			// Nothing beyond the stored session.
		case auth.EventUserUpdated:
			m.loadProfile(ctx, identityID)
		case auth.EventSignedIn:
			m.maybeNotifyVerified(evt.Session.Identity)
			m.loadProfile(ctx, identityID)
		}
	}
}

// ========== Internals ==========

func (m *Manager) guard() error {
	if m == nil || !m.initialized {
		return fmt.Errorf("account manager used before initialization")
	}
	return nil
}

// clearLocked drops session/identity/profile and bumps the fetch generation.
// Callers hold m.mu.
func (m *Manager) clearLocked() {
	m.session = nil
	m.identity = nil
	m.prof = nil
	m.gen++
}

func (m *Manager) settleUnauthenticated() {
	m.mu.Lock()
	m.clearLocked()
	m.state = StateUnauthenticated
	m.mu.Unlock()
}

// adoptSession stores the session and derives the identity. An event that
// carries no access token (e.g. a server-side USER_UPDATED) keeps the one
// already held. It returns the generation at adoption time; callers must
// re-check it before transitioning to Authenticated so a sign-out that
// lands mid-flow keeps the cleared state.
func (m *Manager) adoptSession(sess *auth.Session) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess.AccessToken == "" && m.session != nil {
		keep := *sess
		keep.AccessToken = m.session.AccessToken
		if keep.ExpiresAt.IsZero() {
			keep.ExpiresAt = m.session.ExpiresAt
		}
		m.session = &keep
	} else {
		m.session = sess
	}
	m.identity = sess.Identity
	return m.gen
}

func (m *Manager) maybeNotifyVerified(identity *auth.Identity) {
	if identity == nil || !identity.EmailVerified {
		return
	}
	m.mu.Lock()
	first := !m.verifiedNotified
	m.verifiedNotified = true
	m.mu.Unlock()
	if first {
		m.cfg.Notifier.Info("Email verified", "your email address has been confirmed")
	}
}

// loadProfile fetches the profile row, creating it on first contact. The
// adoption of the result is gated on the generation captured before the
// fetch so a concurrent sign-out wins.
func (m *Manager) loadProfile(ctx context.Context, identityID string) {
	if identityID == "" {
		return
	}

	m.mu.Lock()
	startGen := m.gen
	m.mu.Unlock()

	p, err := m.cfg.Profiles.GetByID(ctx, identityID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			p, err = m.createProfile(ctx, identityID)
		}
		if err != nil {
			m.cfg.Notifier.Error("Profile error", err.Error())
			m.mu.Lock()
			if m.gen == startGen {
				m.prof = nil
			}
			m.mu.Unlock()
			return
		}
	}

	m.mu.Lock()
	if m.gen == startGen {
		m.prof = p
	} else {
		m.cfg.Logger.Debug("dropping stale profile fetch",
			zap.String("identity_id", identityID))
	}
	m.mu.Unlock()
}

// createProfile inserts the missing row with a derived default username and
// zero coins. A default-username collision retries once with the timestamp
// fallback; the unique constraint stays authoritative.
func (m *Manager) createProfile(ctx context.Context, identityID string) (*profile.Profile, error) {
	identity := m.currentIdentity(ctx)

	username := deriveDefaultUsername(identity.EmailAddress())
	p := &profile.Profile{ID: identityID, Username: username, Coins: 0}

	err := m.cfg.Profiles.Insert(ctx, p)
	if xerrors.Is(err, xerrors.ErrUsernameTaken) {
		p.Username = fallbackUsername()
		err = m.cfg.Profiles.Insert(ctx, p)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return p, nil
}

func (m *Manager) currentIdentity(ctx context.Context) *auth.Identity {
	m.mu.Lock()
	token := ""
	stored := m.identity
	if m.session != nil {
		token = m.session.AccessToken
	}
	m.mu.Unlock()

	if token != "" {
		if fresh, err := m.cfg.Provider.GetUser(ctx, token); err == nil {
			return fresh
		}
	}
	if stored != nil {
		return stored
	}
	return &auth.Identity{}
}

func (m *Manager) usernameTaken(ctx context.Context, username, excludeID string) (bool, error) {
	_, err := m.cfg.Profiles.FindByUsernameExcluding(ctx, username, excludeID)
	if err == nil {
		return true, nil
	}
	if xerrors.Is(err, xerrors.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func deriveDefaultUsername(email string) string {
	if email != "" {
		if at := strings.Index(email, "@"); at > 0 {
			return email[:at]
		}
	}
	return fallbackUsername()
}

func fallbackUsername() string {
	return fmt.Sprintf("user%d", time.Now().Unix())
}
