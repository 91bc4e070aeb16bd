// Package usercache is a short-TTL read-through cache over the user
// directory, so privileged actions do not re-query the directory on every
// event.
package usercache

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Amatex1/pryde-backend-sub002/internal/domain"
	"github.com/Amatex1/pryde-backend-sub002/internal/repository"
)

const shardCount = 16

type entry struct {
	info      domain.UserInfo
	expiresAt time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]entry
}

type Cache struct {
	directory repository.UserDirectory
	ttl       time.Duration
	shards    [shardCount]shard
	group     singleflight.Group
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func New(directory repository.UserDirectory, ttl, sweepInterval time.Duration) *Cache {
	c := &Cache{
		directory: directory,
		ttl:       ttl,
		stopCh:    make(chan struct{}),
	}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]entry)
	}

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sweep(time.Now())
			case <-c.stopCh:
				return
			}
		}
	}()

	return c
}

func (c *Cache) shardFor(userID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &c.shards[h.Sum32()%shardCount]
}

// Get returns the directory entry for userID, fetching through the
// collaborator on a miss. Concurrent misses for the same user collapse to a
// single directory call.
func (c *Cache) Get(ctx context.Context, userID string) (domain.UserInfo, error) {
	s := c.shardFor(userID)
	s.mu.Lock()
	if e, ok := s.entries[userID]; ok && time.Now().Before(e.expiresAt) {
		s.mu.Unlock()
		return e.info, nil
	}
	s.mu.Unlock()

	v, err, _ := c.group.Do(userID, func() (interface{}, error) {
		infos, err := c.directory.Find(ctx, []string{userID})
		if err != nil {
			return domain.UserInfo{}, err
		}
		if len(infos) == 0 {
			return domain.UserInfo{}, fmt.Errorf("user %s not found", userID)
		}

		s.mu.Lock()
		s.entries[userID] = entry{info: infos[0], expiresAt: time.Now().Add(c.ttl)}
		s.mu.Unlock()
		return infos[0], nil
	})
	if err != nil {
		return domain.UserInfo{}, err
	}
	return v.(domain.UserInfo), nil
}

func (c *Cache) sweep(now time.Time) {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for id, e := range s.entries {
			if now.After(e.expiresAt) {
				delete(s.entries, id)
			}
		}
		s.mu.Unlock()
	}
}

func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
