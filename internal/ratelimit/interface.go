package ratelimit

import (
	"context"
	"time"
)

// Store records event timestamps per key and decides admission under a
// sliding window. Both implementations must behave identically: a rejected
// attempt does not consume a window slot.
type Store interface {
	// Take admits or rejects one event for key at time now. It drops
	// timestamps older than now-window, rejects when max live timestamps
	// already exist, and otherwise records now.
	Take(ctx context.Context, key string, now time.Time, window time.Duration, max int) (bool, error)
	Close() error
}
