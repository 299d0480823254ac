package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryRevocationStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRevocationStore(time.Hour)
	defer s.Close()

	if revoked, _ := s.IsRevoked(ctx, "jti-1"); revoked {
		t.Fatal("expected unknown jti not to be revoked")
	}
	s.Revoke(ctx, "jti-1", time.Now().Add(time.Hour))
	if revoked, _ := s.IsRevoked(ctx, "jti-1"); !revoked {
		t.Fatal("expected jti-1 to be revoked")
	}

	s.Revoke(ctx, "jti-old", time.Now().Add(-time.Minute))
	s.cleanup()
	if s.Count() != 1 {
		t.Errorf("expected expired entry to be cleaned up, got %d entries", s.Count())
	}

	s.Close()
	s.Close()
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisRevocationStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisRevocationStore(client)
}

func TestRedisRevocationStore_RevokeAndExpire(t *testing.T) {
	ctx := context.Background()
	mr, s := setupTestRedis(t)

	if err := s.Revoke(ctx, "jti-1", time.Now().Add(10*time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := s.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got %v (%v)", revoked, err)
	}
	if ttl := mr.TTL(revokedKeyPrefix + "jti-1"); ttl <= 0 || ttl > 10*time.Minute {
		t.Errorf("expected ttl bounded by token expiry, got %s", ttl)
	}

	mr.FastForward(11 * time.Minute)
	revoked, _ = s.IsRevoked(ctx, "jti-1")
	if revoked {
		t.Error("expected revocation to lapse with the token")
	}
}

func TestRedisRevocationStore_AlreadyExpiredToken(t *testing.T) {
	ctx := context.Background()
	mr, s := setupTestRedis(t)

	if err := s.Revoke(ctx, "jti-old", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if mr.Exists(revokedKeyPrefix + "jti-old") {
		t.Error("expected no key for a token that already expired")
	}
}

func TestRedisRevocationStore_ServerDown(t *testing.T) {
	mr, s := setupTestRedis(t)
	mr.Close()

	if _, err := s.IsRevoked(context.Background(), "jti"); err == nil {
		t.Error("expected error when redis is unreachable")
	}
}
