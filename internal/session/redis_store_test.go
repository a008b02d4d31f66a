package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestNewRedisStorePing(t *testing.T) {
	store, _ := setupTestRedis(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "hash-1", "op_1", time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession: %v", err)
	}
	operator, err := store.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("LookupRefreshSession: %v", err)
	}
	if operator.ID != "op_1" {
		t.Errorf("operator id = %s, want op_1", operator.ID)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "hash-exp", "op_2", time.Now().Add(time.Millisecond)); err != nil {
		t.Fatalf("SaveRefreshSession: %v", err)
	}
	s.FastForward(2 * time.Millisecond)

	if _, err := store.LookupRefreshSession(ctx, "hash-exp"); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestLookupNonExistentSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	if _, err := store.LookupRefreshSession(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown token")
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "hash-revoke", "op_3", time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession: %v", err)
	}
	if err := store.RevokeRefreshSession(ctx, "hash-revoke"); err != nil {
		t.Fatalf("RevokeRefreshSession: %v", err)
	}
	if _, err := store.LookupRefreshSession(ctx, "hash-revoke"); err == nil {
		t.Error("expected error for revoked token")
	}
	// Revoking a token that does not exist is not an error.
	if err := store.RevokeRefreshSession(ctx, "hash-revoke"); err != nil {
		t.Errorf("double revoke: %v", err)
	}
}

func TestSessionIsolation(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := store.SaveRefreshSession(ctx, "hash-a", "op_a", expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession: %v", err)
	}
	if err := store.SaveRefreshSession(ctx, "hash-b", "op_b", expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession: %v", err)
	}
	if err := store.RevokeRefreshSession(ctx, "hash-a"); err != nil {
		t.Fatalf("RevokeRefreshSession: %v", err)
	}
	if _, err := store.LookupRefreshSession(ctx, "hash-a"); err == nil {
		t.Error("hash-a should be gone")
	}
	operator, err := store.LookupRefreshSession(ctx, "hash-b")
	if err != nil {
		t.Fatalf("hash-b lookup: %v", err)
	}
	if operator.ID != "op_b" {
		t.Errorf("operator id = %s, want op_b", operator.ID)
	}
}
