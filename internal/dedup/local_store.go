package dedup

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const localShardCount = 32

type localEntry struct {
	recordID  string
	expiresAt time.Time
}

// localStore is the in-process fingerprint cache used when no Redis address
// is configured. Sharded by fingerprint hash; expired entries are ignored on
// read and removed by a periodic sweep.
type localStore struct {
	shards   [localShardCount]localShard
	stopCh   chan struct{}
	stopOnce sync.Once
}

type localShard struct {
	mu      sync.Mutex
	entries map[string]localEntry
}

func NewLocalStore(sweepInterval time.Duration) Store {
	s := &localStore{stopCh: make(chan struct{})}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]localEntry)
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

func (s *localStore) shardFor(fingerprint string) *localShard {
	h := fnv.New32a()
	h.Write([]byte(fingerprint))
	return &s.shards[h.Sum32()%localShardCount]
}

func (s *localStore) Get(_ context.Context, fingerprint string) (string, bool, error) {
	shard := s.shardFor(fingerprint)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.entries[fingerprint]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false, nil
	}
	return entry.recordID, true, nil
}

func (s *localStore) Put(_ context.Context, fingerprint, recordID string, ttl time.Duration) error {
	shard := s.shardFor(fingerprint)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	shard.entries[fingerprint] = localEntry{
		recordID:  recordID,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (s *localStore) sweep(now time.Time) {
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.Lock()
		for fp, entry := range shard.entries {
			if now.After(entry.expiresAt) {
				delete(shard.entries, fp)
			}
		}
		shard.mu.Unlock()
	}
}

func (s *localStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}
