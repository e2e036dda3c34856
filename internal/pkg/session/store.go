// internal/pkg/session/store.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps live session bundles in Redis, keyed by identity and jti.
// Redis is the source of truth; an expired key is an expired session.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Create stores a new session with a TTL matching its expiry.
func (s *Store) Create(ctx context.Context, data *SessionData) error {
	key := s.sessionKey(data.IdentityID, data.JTI)

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(data.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}

	if err := s.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}
	return nil
}

// Get retrieves a session and bumps its last-activity timestamp.
func (s *Store) Get(ctx context.Context, identityID, jti string) (*SessionData, error) {
	key := s.sessionKey(identityID, jti)

	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var data SessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	data.LastActivityAt = time.Now()
	go s.touch(context.Background(), &data)

	return &data, nil
}

// Invalidate removes a single session.
func (s *Store) Invalidate(ctx context.Context, identityID, jti string) error {
	return s.client.Del(ctx, s.sessionKey(identityID, jti)).Err()
}

// InvalidateAll removes every session for an identity.
func (s *Store) InvalidateAll(ctx context.Context, identityID string) error {
	pattern := fmt.Sprintf("session:%s:*", identityID)
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete session %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

func (s *Store) touch(ctx context.Context, data *SessionData) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	ttl := time.Until(data.ExpiresAt)
	if ttl > 0 {
		s.client.Set(ctx, s.sessionKey(data.IdentityID, data.JTI), raw, ttl)
	}
}

func (s *Store) sessionKey(identityID, jti string) string {
	return fmt.Sprintf("session:%s:%s", identityID, jti)
}
