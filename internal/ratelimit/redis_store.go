package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "realtime:ratelimit:"

// redisStore keeps one sorted set of timestamps per key, scored by unix
// nanoseconds. Trimming, insertion, counting and expiry run in one
// transactional pipeline; when the count comes back over budget the freshly
// added member is removed again so a rejected attempt does not consume a
// slot. Entries expire natively, so no sweep is needed.
type redisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and returns a shared-backend store.
func NewRedisStore(client *redis.Client) (Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisStore{client: client}, nil
}

func (s *redisStore) Take(ctx context.Context, key string, now time.Time, window time.Duration, max int) (bool, error) {
	redisKey := redisKeyPrefix + key
	nowNs := now.UnixNano()
	windowStart := now.Add(-window).UnixNano()
	member := strconv.FormatInt(nowNs, 10) + ":" + uuid.NewString()

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(nowNs), Member: member})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit pipeline: %w", err)
	}

	if int(countCmd.Val()) > max {
		if err := s.client.ZRem(ctx, redisKey, member).Err(); err != nil {
			return false, fmt.Errorf("rate limit compensation: %w", err)
		}
		return false, nil
	}

	return true, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
