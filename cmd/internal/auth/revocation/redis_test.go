package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	s, err := NewRedisStore(client)
	require.NoError(t, err)
	return s, mr
}

func TestRedisStore_MarkThenCheck(t *testing.T) {
	s, _ := newMiniredisStore(t)
	ctx := context.Background()

	revoked, err := s.IsRevoked(ctx, "tok-a")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.MarkRevoked(ctx, "tok-a", time.Minute))

	revoked, err = s.IsRevoked(ctx, "tok-a")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = s.IsRevoked(ctx, "tok-b")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisStore_RecordExpiresWithTTL(t *testing.T) {
	s, mr := newMiniredisStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkRevoked(ctx, "tok", 30*time.Second))

	mr.FastForward(29 * time.Second)
	revoked, err := s.IsRevoked(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, revoked)

	mr.FastForward(2 * time.Second)
	revoked, err = s.IsRevoked(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisStore_KeysAreDigests(t *testing.T) {
	s, mr := newMiniredisStore(t)

	require.NoError(t, s.MarkRevoked(context.Background(), "secret.jwt.value", time.Minute))

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, Key(DefaultKeyPrefix, "secret.jwt.value"), keys[0])
	assert.NotContains(t, keys[0], "secret.jwt.value")
	assert.Equal(t, time.Minute, mr.TTL(keys[0]))
}

func TestRedisStore_NonPositiveTTLIsNoop(t *testing.T) {
	s, mr := newMiniredisStore(t)

	require.NoError(t, s.MarkRevoked(context.Background(), "tok", 0))
	require.NoError(t, s.MarkRevoked(context.Background(), "tok", -time.Second))
	assert.Empty(t, mr.Keys())
}

func TestRedisStore_UnavailableFailsClosed(t *testing.T) {
	s, mr := newMiniredisStore(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	revoked, err := s.IsRevoked(ctx, "tok")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, revoked)

	assert.ErrorIs(t, s.MarkRevoked(ctx, "tok", time.Minute), ErrStoreUnavailable)
	assert.ErrorIs(t, s.Ping(ctx), ErrStoreUnavailable)
}

func TestRedisStore_CustomPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s, err := NewRedisStore(client, WithKeyPrefix("test:rv:"))
	require.NoError(t, err)
	require.NoError(t, s.MarkRevoked(context.Background(), "tok", time.Minute))

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, Key("test:rv:", "tok"), keys[0])
}

func TestNewRedisStore_NilClient(t *testing.T) {
	_, err := NewRedisStore(nil)
	assert.Error(t, err)
}

func TestRedisStore_ConsumeOnce(t *testing.T) {
	s, mr := newMiniredisStore(t)
	ctx := context.Background()

	first, err := s.Consume(ctx, "tok", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.Consume(ctx, "tok", time.Minute)
	require.NoError(t, err)
	assert.False(t, again)

	revoked, err := s.IsRevoked(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, revoked)

	mr.FastForward(time.Minute + time.Second)
	first, err = s.Consume(ctx, "tok", time.Minute)
	require.NoError(t, err)
	assert.True(t, first, "expired record no longer blocks")
}
