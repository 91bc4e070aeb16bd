package dedup

import (
	"context"
	"time"
)

// Store maps message fingerprints to delivered record ids. Entries are
// written once after a successful persist, read back on duplicate attempts,
// and evicted by TTL, never updated.
type Store interface {
	Get(ctx context.Context, fingerprint string) (recordID string, ok bool, err error)
	Put(ctx context.Context, fingerprint, recordID string, ttl time.Duration) error
	Close() error
}
