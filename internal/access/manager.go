package access

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	redislib "github.com/redis/go-redis/v9"

	redisclient "github.com/lumenfolio/portal-backend/pkg/redis"
)

const sessionTokenBytes = 32

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

type sessionKeyer interface {
	PortalSessionKey(token string) string
}

// SessionManager stores the token to resource binding for visitor sessions.
// The token lives in the visitor's cookie; the server only keeps the mapping.
type SessionManager struct {
	store sessionStore
	keyer sessionKeyer
	ttl   time.Duration
}

// NewSessionManager constructs a session manager backed by Redis.
func NewSessionManager(client *redisclient.Client, ttl time.Duration) (*SessionManager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	return &SessionManager{
		store: client,
		keyer: client,
		ttl:   ttl,
	}, nil
}

// Issue creates a fresh session token bound to the resource.
func (m *SessionManager) Issue(ctx context.Context, resourceID string) (string, error) {
	if strings.TrimSpace(resourceID) == "" {
		return "", fmt.Errorf("resource id is required")
	}
	token, err := generateSessionToken()
	if err != nil {
		return "", err
	}
	if err := m.store.Set(ctx, m.keyer.PortalSessionKey(token), resourceID, m.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Validate reports whether the token exists, has not expired, and is bound to
// the exact resource being requested. A token issued for one resource never
// unlocks another.
func (m *SessionManager) Validate(ctx context.Context, token, resourceID string) (bool, error) {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(resourceID) == "" {
		return false, nil
	}
	bound, err := m.store.Get(ctx, m.keyer.PortalSessionKey(token))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return false, nil
		}
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(bound), []byte(resourceID)) == 1, nil
}

// Revoke deletes a session token.
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	return m.store.Del(ctx, m.keyer.PortalSessionKey(token))
}

func generateSessionToken() (string, error) {
	bytes := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
