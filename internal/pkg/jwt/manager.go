// internal/pkg/jwt/manager.go
package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

type Config struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// Manager signs and verifies HS256 access tokens.
type Manager struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt manager requires a secret")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Manager{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
	}, nil
}

// GenerateAccessToken issues a signed access token for the identity.
// It returns the token, its jti and its expiry.
func (m *Manager) GenerateAccessToken(identityID, email string) (string, string, time.Time, error) {
	now := time.Now()
	jti := ulid.Make().String()
	expiresAt := now.Add(m.ttl)

	claims := &Claims{
		IdentityID:     identityID,
		Email:          email,
		SessionPurpose: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   identityID,
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(m.secret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, jti, expiresAt, nil
}

// VerifyAccessToken parses and validates an access token.
func (m *Manager) VerifyAccessToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		return nil, err
	}
	if !claims.VerifyAudience(m.audience, true) {
		return nil, fmt.Errorf("token audience mismatch")
	}
	if claims.SessionPurpose != "access" {
		return nil, fmt.Errorf("token is not an access token")
	}
	return claims, nil
}

// TTL reports the configured access-token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}
