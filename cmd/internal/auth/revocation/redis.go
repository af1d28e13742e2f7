package revocation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps revocation records as Redis keys with a TTL.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if p := strings.TrimSpace(prefix); p != "" {
			s.prefix = p
		}
	}
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps client. The client is owned by the caller.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("revocation: nil redis client")
	}
	s := &RedisStore{client: client, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *RedisStore) MarkRevoked(ctx context.Context, raw string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, Key(s.prefix, raw), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: set: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, raw string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	first, err := s.client.SetNX(ctx, Key(s.prefix, raw), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: setnx: %v", ErrStoreUnavailable, err)
	}
	return first, nil
}

func (s *RedisStore) IsRevoked(ctx context.Context, raw string) (bool, error) {
	n, err := s.client.Exists(ctx, Key(s.prefix, raw)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: exists: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// Ping checks backend reachability for readiness probes.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrStoreUnavailable, err)
	}
	return nil
}
