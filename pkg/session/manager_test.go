package session

import (
	"context"
	"errors"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

type memStore struct {
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}}
}

func (m *memStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.data[key] = value.(string)
	return nil
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return v, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

type memKeyer struct{}

func (memKeyer) SessionTokenKey(sessionID string) string { return "t:" + sessionID }
func (memKeyer) SessionUserKey(sessionID string) string  { return "u:" + sessionID }

func newTestManager() (*Manager, *memStore) {
	store := newMemStore()
	return &Manager{store: store, keyer: memKeyer{}, ttl: time.Hour}, store
}

func TestBindAndReadUpstream(t *testing.T) {
	ctx := context.Background()
	mgr, _ := newTestManager()

	if err := mgr.BindUpstream(ctx, "sess-1", "tok-abc", `{"name":"Asha"}`); err != nil {
		t.Fatalf("bind: %v", err)
	}

	token, err := mgr.UpstreamToken(ctx, "sess-1")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if token != "tok-abc" {
		t.Fatalf("unexpected token %q", token)
	}

	user, err := mgr.User(ctx, "sess-1")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if user != `{"name":"Asha"}` {
		t.Fatalf("unexpected user %q", user)
	}
}

func TestGuestSessionHasNoToken(t *testing.T) {
	mgr, _ := newTestManager()

	_, err := mgr.UpstreamToken(context.Background(), "guest-session")
	if !errors.Is(err, ErrNoUpstreamToken) {
		t.Fatalf("expected ErrNoUpstreamToken, got %v", err)
	}
}

func TestUnbindClearsCredentials(t *testing.T) {
	ctx := context.Background()
	mgr, store := newTestManager()

	if err := mgr.BindUpstream(ctx, "sess-2", "tok", `{}`); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := mgr.Unbind(ctx, "sess-2"); err != nil {
		t.Fatalf("unbind: %v", err)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected empty store, got %v", store.data)
	}
	if _, err := mgr.UpstreamToken(ctx, "sess-2"); !errors.Is(err, ErrNoUpstreamToken) {
		t.Fatalf("expected ErrNoUpstreamToken after unbind, got %v", err)
	}
}

func TestBindRequiresToken(t *testing.T) {
	mgr, _ := newTestManager()
	if err := mgr.BindUpstream(context.Background(), "sess-3", " ", ""); err == nil {
		t.Fatal("expected error for empty token")
	}
}
