package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gatewarden/gatewarden/internal/shared"
)

// RevocationStore tracks revoked token IDs. It sits on the hot path of every
// authenticated request, so implementations must answer lookups in bounded
// time and must not lose a concurrent revocation.
type RevocationStore interface {
	MarkRevoked(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisRevocationStore keeps revoked jtis in Redis with a TTL equal to the
// remaining token lifetime, so entries expire exactly when the token would
// have. Backing the set with Redis keeps revocation immediately visible to
// every process instance; if Redis is unreachable, lookups fail closed.
type RedisRevocationStore struct {
	client *redis.Client
}

// NewRedisRevocationStore constructs the store.
func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

var _ RevocationStore = (*RedisRevocationStore)(nil)

func revocationKey(jti string) string {
	return "revoked:" + jti
}

// MarkRevoked records a jti as revoked. Re-marking an already revoked jti is
// a no-op, keeping revocation idempotent.
func (s *RedisRevocationStore) MarkRevoked(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		// Token already expired; nothing to track.
		return nil
	}
	if err := s.client.Set(ctx, revocationKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("auth: mark revoked: %w: %w", shared.ErrStoreUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether the jti has been revoked.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, revocationKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("auth: revocation lookup: %w: %w", shared.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}
