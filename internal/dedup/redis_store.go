package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "realtime:dedup:"

// redisStore keeps fingerprint entries as plain keys with native expiry.
// SET NX preserves the first writer's record id if two processes race.
type redisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) (Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisStore{client: client}, nil
}

func (s *redisStore) Get(ctx context.Context, fingerprint string) (string, bool, error) {
	val, err := s.client.Get(ctx, redisKeyPrefix+fingerprint).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dedup get: %w", err)
	}
	return val, true, nil
}

func (s *redisStore) Put(ctx context.Context, fingerprint, recordID string, ttl time.Duration) error {
	if err := s.client.SetNX(ctx, redisKeyPrefix+fingerprint, recordID, ttl).Err(); err != nil {
		return fmt.Errorf("dedup put: %w", err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
