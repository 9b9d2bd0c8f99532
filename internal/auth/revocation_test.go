package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/shared"
)

func testRevocationStore(t *testing.T) (*RedisRevocationStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRevocationStore(client), mr
}

func TestRevocationMarkAndLookup(t *testing.T) {
	store, _ := testRevocationStore(t)
	ctx := context.Background()

	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, store.MarkRevoked(ctx, "jti-1", time.Minute))
	revoked, err = store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)

	// Other jtis stay untouched.
	revoked, err = store.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestRevocationEntryExpiresWithToken(t *testing.T) {
	store, mr := testRevocationStore(t)
	ctx := context.Background()

	require.NoError(t, store.MarkRevoked(ctx, "jti-1", time.Minute))
	mr.FastForward(61 * time.Second)

	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked, "entry should lapse once the token itself expired")
}

func TestRevocationSkipsExpiredTokens(t *testing.T) {
	store, mr := testRevocationStore(t)
	ctx := context.Background()

	require.NoError(t, store.MarkRevoked(ctx, "jti-1", 0))
	require.NoError(t, store.MarkRevoked(ctx, "jti-2", -time.Minute))
	require.Empty(t, mr.Keys())
}

func TestRevocationFailsClosedOnOutage(t *testing.T) {
	store, mr := testRevocationStore(t)
	ctx := context.Background()

	mr.Close()
	_, err := store.IsRevoked(ctx, "jti-1")
	require.ErrorIs(t, err, shared.ErrStoreUnavailable)
	require.ErrorIs(t, store.MarkRevoked(ctx, "jti-1", time.Minute), shared.ErrStoreUnavailable)
}
