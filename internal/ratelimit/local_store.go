package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const localShardCount = 32

// localStore is the in-process fallback used when no Redis address is
// configured. Keys are sharded by hash so concurrent handlers only contend
// on their own shard, and a background sweep evicts keys whose newest
// timestamp has aged out of the widest configured window.
type localStore struct {
	shards    [localShardCount]localShard
	maxWindow time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

type localShard struct {
	mu   sync.Mutex
	keys map[string][]time.Time
}

// NewLocalStore creates a local store sweeping every sweepInterval. maxWindow
// should be the widest window in the policy table.
func NewLocalStore(maxWindow, sweepInterval time.Duration) Store {
	s := &localStore{
		maxWindow: maxWindow,
		stopCh:    make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i].keys = make(map[string][]time.Time)
	}

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep(time.Now())
			case <-s.stopCh:
				return
			}
		}
	}()

	return s
}

func (s *localStore) shardFor(key string) *localShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.shards[h.Sum32()%localShardCount]
}

func (s *localStore) Take(_ context.Context, key string, now time.Time, window time.Duration, max int) (bool, error) {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	windowStart := now.Add(-window)
	stamps := shard.keys[key]

	// Filter lazily: keep only timestamps inside the window.
	live := stamps[:0]
	for _, ts := range stamps {
		if ts.After(windowStart) {
			live = append(live, ts)
		}
	}

	if len(live) >= max {
		shard.keys[key] = live
		return false, nil
	}

	shard.keys[key] = append(live, now)
	return true, nil
}

// sweep drops keys whose newest timestamp is older than the widest window,
// bounding memory growth from idle users.
func (s *localStore) sweep(now time.Time) {
	cutoff := now.Add(-s.maxWindow)
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.Lock()
		for key, stamps := range shard.keys {
			if len(stamps) == 0 || stamps[len(stamps)-1].Before(cutoff) {
				delete(shard.keys, key)
			}
		}
		shard.mu.Unlock()
	}
}

func (s *localStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}
