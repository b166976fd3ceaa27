package artifact

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"casegate/pkg/platform/sentinel"
)

// DefaultRedisKey is where the current model blob lives.
const DefaultRedisKey = "casegate:classifier:current"

// RedisStore shares the artifact between instances. A single SET replaces the
// blob atomically.
type RedisStore struct {
	client *redis.Client
	key    string
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKey overrides the blob key.
func WithKey(key string) RedisStoreOption {
	return func(s *RedisStore) {
		if key != "" {
			s.key = key
		}
	}
}

// NewRedisStore constructs a Redis-backed artifact store.
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, key: DefaultRedisKey}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) Save(ctx context.Context, blob []byte) error {
	if err := s.client.Set(ctx, s.key, blob, 0).Err(); err != nil {
		return fmt.Errorf("set model blob: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) ([]byte, error) {
	blob, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get model blob: %w", err)
	}
	return blob, nil
}
