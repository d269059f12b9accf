package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSessionStore(client, time.Hour), mr
}

func TestSessionCreateAndResolve(t *testing.T) {
	store, _ := newTestStore(t)

	token, err := store.Create(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(token) != 64 {
		t.Fatalf("expected 64-char hex token, got %d chars", len(token))
	}

	userID, err := store.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != 42 {
		t.Fatalf("expected user 42, got %d", userID)
	}
}

func TestSessionResolveUnknownToken(t *testing.T) {
	store, _ := newTestStore(t)

	userID, err := store.Resolve(context.Background(), "deadbeef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != 0 {
		t.Fatalf("expected 0 for unknown token, got %d", userID)
	}
}

func TestSessionExpiry(t *testing.T) {
	store, mr := newTestStore(t)

	token, err := store.Create(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mr.FastForward(2 * time.Hour)

	userID, err := store.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != 0 {
		t.Fatalf("expected expired token to resolve to 0, got %d", userID)
	}
}

func TestSessionRevoke(t *testing.T) {
	store, _ := newTestStore(t)

	token, err := store.Create(context.Background(), 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Revoke(context.Background(), token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	userID, err := store.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != 0 {
		t.Fatalf("expected revoked token to resolve to 0, got %d", userID)
	}
}
