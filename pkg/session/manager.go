package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platewise/storefront-edge/pkg/config"
	redisclient "github.com/platewise/storefront-edge/pkg/redis"
	redislib "github.com/redis/go-redis/v9"
)

// ErrNoUpstreamToken signals a session with no upstream credentials, i.e. a
// guest or an expired sign-in.
var ErrNoUpstreamToken = errors.New("no upstream token for session")

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

type sessionKeyer interface {
	SessionTokenKey(sessionID string) string
	SessionUserKey(sessionID string) string
}

// Manager holds upstream credentials and user profiles keyed by edge
// session identifier. The browser only ever sees the edge JWT; the
// upstream token stays server-side.
type Manager struct {
	store sessionStore
	keyer sessionKeyer
	ttl   time.Duration
}

// UpstreamTokenReader exposes the read-only surface needed by middleware.
type UpstreamTokenReader interface {
	UpstreamToken(ctx context.Context, sessionID string) (string, error)
}

// NewManager constructs a session manager backed by Redis.
func NewManager(client *redisclient.Client, cfg config.SessionConfig) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.CookieTTL <= 0 {
		return nil, fmt.Errorf("session cookie ttl must be positive")
	}
	return &Manager{
		store: client,
		keyer: client,
		ttl:   cfg.CookieTTL,
	}, nil
}

// BindUpstream stores the upstream auth token and serialized user profile
// for the session. Called by the sign-in bridge.
func (m *Manager) BindUpstream(ctx context.Context, sessionID, token, userJSON string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("upstream token is required")
	}
	if err := m.store.Set(ctx, m.keyer.SessionTokenKey(sessionID), token, m.ttl); err != nil {
		return err
	}
	if userJSON != "" {
		if err := m.store.Set(ctx, m.keyer.SessionUserKey(sessionID), userJSON, m.ttl); err != nil {
			return err
		}
	}
	return nil
}

// UpstreamToken returns the upstream token bound to the session, or
// ErrNoUpstreamToken when the session is a guest.
func (m *Manager) UpstreamToken(ctx context.Context, sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrNoUpstreamToken
	}
	token, err := m.store.Get(ctx, m.keyer.SessionTokenKey(sessionID))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return "", ErrNoUpstreamToken
		}
		return "", err
	}
	if token == "" {
		return "", ErrNoUpstreamToken
	}
	return token, nil
}

// User returns the serialized profile bound to the session, or empty when
// none was stored.
func (m *Manager) User(ctx context.Context, sessionID string) (string, error) {
	raw, err := m.store.Get(ctx, m.keyer.SessionUserKey(sessionID))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return "", nil
		}
		return "", err
	}
	return raw, nil
}

// Unbind drops the upstream credentials for the session. Called on
// sign-out; the session itself lives on as a guest.
func (m *Manager) Unbind(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	return m.store.Del(ctx,
		m.keyer.SessionTokenKey(sessionID),
		m.keyer.SessionUserKey(sessionID),
	)
}
