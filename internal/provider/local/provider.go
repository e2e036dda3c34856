// internal/provider/local/provider.go
package local

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"questa-service/internal/domain/auth"
	"questa-service/internal/events"
	xerrors "questa-service/internal/pkg/errors"
	"questa-service/internal/pkg/jwt"
	"questa-service/internal/pkg/session"
	"questa-service/internal/repository/postgres"
	"questa-service/internal/service/email"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const confirmTokenTTL = 24 * time.Hour

// Provider is the local password identity provider: identities in Postgres,
// live sessions in Redis, HS256 access tokens, auth events on the broker.
type Provider struct {
	authRepo    *postgres.AuthRepository
	sessions    *session.Store
	jwtManager  *jwt.Manager
	broker      *events.Broker
	emailSender *email.EmailSender
	cache       *redis.Client
	publicURL   string
	logger      *zap.Logger
}

func NewProvider(
	authRepo *postgres.AuthRepository,
	sessions *session.Store,
	jwtManager *jwt.Manager,
	broker *events.Broker,
	emailSender *email.EmailSender,
	cache *redis.Client,
	publicURL string,
	logger *zap.Logger,
) *Provider {
	return &Provider{
		authRepo:    authRepo,
		sessions:    sessions,
		jwtManager:  jwtManager,
		broker:      broker,
		emailSender: emailSender,
		cache:       cache,
		publicURL:   publicURL,
		logger:      logger,
	}
}

// ========== Session retrieval ==========

// GetSession validates a persisted access token against the live session
// store and rebuilds the session bundle.
func (p *Provider) GetSession(ctx context.Context, accessToken string) (*auth.Session, error) {
	claims, err := p.jwtManager.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, xerrors.ErrSessionExpired
	}

	if _, err := p.sessions.Get(ctx, claims.IdentityID, claims.ID); err != nil {
		return nil, xerrors.ErrSessionExpired
	}

	identity, err := p.authRepo.FindIdentityByID(ctx, claims.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	return &auth.Session{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresAt:   claims.ExpiresAt.Time,
		Identity:    identity,
	}, nil
}

// GetUser returns the identity behind an access token.
func (p *Provider) GetUser(ctx context.Context, accessToken string) (*auth.Identity, error) {
	claims, err := p.jwtManager.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, xerrors.ErrSessionExpired
	}
	return p.authRepo.FindIdentityByID(ctx, claims.IdentityID)
}

// ========== Password auth ==========

// SignInWithPassword authenticates email/password and opens a session.
func (p *Provider) SignInWithPassword(ctx context.Context, emailAddr, password string) (*auth.Session, error) {
	identity, passwordHash, err := p.authRepo.FindIdentityByEmail(ctx, emailAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid login credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid login credentials")
	}

	if identity.Status == "suspended" {
		return nil, fmt.Errorf("account is suspended")
	}

	sess, err := p.openSession(ctx, identity)
	if err != nil {
		return nil, err
	}

	if err := p.authRepo.UpdateIdentityLastLogin(ctx, identity.ID); err != nil {
		p.logger.Warn("failed to update last login", zap.Error(err))
	}

	p.broker.Publish(auth.Event{
		Type:       auth.EventSignedIn,
		IdentityID: identity.ID,
		Session:    sess,
		OccurredAt: time.Now(),
	})

	return sess, nil
}

// SignUp creates a pending identity and sends the confirmation link.
// A duplicate email surfaces as xerrors.ErrAccountExists, mirroring the
// hosted providers' zero-identities signal.
func (p *Provider) SignUp(ctx context.Context, params auth.SignUpParams) (*auth.Identity, error) {
	exists, err := p.authRepo.ExistsByEmail(ctx, params.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, xerrors.ErrAccountExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	identity := &auth.Identity{
		ID:       uuid.NewString(),
		Status:   "pending_verification",
		Metadata: params.Metadata,
	}
	identity.Email.String, identity.Email.Valid = params.Email, true

	if err := p.authRepo.CreateIdentity(ctx, identity, string(hashedPassword)); err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	if err := p.sendConfirmation(ctx, identity, params.RedirectURL); err != nil {
		// Signup stands even when the mail cannot go out.
		p.logger.Error("failed to send confirmation email",
			zap.String("identity_id", identity.ID),
			zap.Error(err),
		)
	}

	return identity, nil
}

// ConfirmEmail redeems a confirmation token, activates the identity and
// pushes USER_UPDATED so live sessions re-derive their profile.
func (p *Provider) ConfirmEmail(ctx context.Context, token string) (*auth.Identity, error) {
	key := confirmKey(token)
	identityID, err := p.cache.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("confirmation link is invalid or expired")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read confirmation token: %w", err)
	}

	if err := p.authRepo.MarkEmailVerified(ctx, identityID); err != nil {
		return nil, fmt.Errorf("failed to confirm email: %w", err)
	}
	p.cache.Del(ctx, key)

	identity, err := p.authRepo.FindIdentityByID(ctx, identityID)
	if err != nil {
		return nil, err
	}

	p.broker.Publish(auth.Event{
		Type:       auth.EventUserUpdated,
		IdentityID: identity.ID,
		Session:    &auth.Session{TokenType: "bearer", Identity: identity},
		OccurredAt: time.Now(),
	})

	return identity, nil
}

// SignOut invalidates the session behind the token. An already-dead token is
// not an error; the caller is signing out either way.
func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	claims, err := p.jwtManager.VerifyAccessToken(accessToken)
	if err != nil {
		return nil
	}

	if err := p.sessions.Invalidate(ctx, claims.IdentityID, claims.ID); err != nil {
		p.logger.Warn("failed to invalidate session", zap.Error(err))
	}

	p.broker.Publish(auth.Event{
		Type:       auth.EventSignedOut,
		IdentityID: claims.IdentityID,
		OccurredAt: time.Now(),
	})
	return nil
}

// Refresh reissues the access token for a still-valid session and pushes
// TOKEN_REFRESHED.
func (p *Provider) Refresh(ctx context.Context, accessToken string) (*auth.Session, error) {
	claims, err := p.jwtManager.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, xerrors.ErrSessionExpired
	}
	if _, err := p.sessions.Get(ctx, claims.IdentityID, claims.ID); err != nil {
		return nil, xerrors.ErrSessionExpired
	}

	identity, err := p.authRepo.FindIdentityByID(ctx, claims.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	sess, err := p.openSession(ctx, identity)
	if err != nil {
		return nil, err
	}

	if err := p.sessions.Invalidate(ctx, claims.IdentityID, claims.ID); err != nil {
		p.logger.Warn("failed to invalidate refreshed session", zap.Error(err))
	}

	p.broker.Publish(auth.Event{
		Type:       auth.EventTokenRefreshed,
		IdentityID: identity.ID,
		Session:    sess,
		OccurredAt: time.Now(),
	})

	return sess, nil
}

// ========== Helpers ==========

func (p *Provider) openSession(ctx context.Context, identity *auth.Identity) (*auth.Session, error) {
	token, jti, expiresAt, err := p.jwtManager.GenerateAccessToken(identity.ID, identity.EmailAddress())
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	now := time.Now()
	err = p.sessions.Create(ctx, &session.SessionData{
		JTI:            jti,
		IdentityID:     identity.ID,
		Email:          identity.EmailAddress(),
		Provider:       "local",
		LoginAt:        now,
		LastActivityAt: now,
		ExpiresAt:      expiresAt,
		IsActive:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return &auth.Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
		Identity:    identity,
	}, nil
}

func (p *Provider) sendConfirmation(ctx context.Context, identity *auth.Identity, redirectURL string) error {
	token := ulid.Make().String()
	if err := p.cache.Set(ctx, confirmKey(token), identity.ID, confirmTokenTTL).Err(); err != nil {
		return fmt.Errorf("failed to store confirmation token: %w", err)
	}

	confirmURL := fmt.Sprintf("%s/api/v1/auth/confirm?token=%s", p.publicURL, token)
	if redirectURL != "" {
		confirmURL += "&redirect_to=" + url.QueryEscape(redirectURL)
	}

	username := "there"
	if v, ok := identity.Metadata["username"].(string); ok && v != "" {
		username = v
	}
	return p.emailSender.SendConfirmation(identity.EmailAddress(), username, confirmURL)
}

func confirmKey(token string) string {
	return fmt.Sprintf("confirm:%s", token)
}
