// Package ratelimit implements per-(user, event) sliding-window admission
// control over a pluggable store. The shared store is backed by Redis sorted
// sets; the local store keeps timestamp slices in sharded in-process maps.
package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Amatex1/pryde-backend-sub002/internal/domain"
	"github.com/Amatex1/pryde-backend-sub002/pkg/log"
)

// Policy is the admission budget for one event type.
type Policy struct {
	Max    int
	Window time.Duration
}

// DefaultPolicies returns the static per-event budget table. Event types
// absent from the table are always admitted. Values are tuned empirically,
// not derived from a correctness requirement.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		domain.MsgTypeDirectMessage: {Max: 25, Window: 30 * time.Second},
		domain.MsgTypeRoomMessage:   {Max: 25, Window: 30 * time.Second},
		domain.MsgTypeTyping:        {Max: 40, Window: 10 * time.Second},
		domain.MsgTypeJoinRoom:      {Max: 20, Window: 60 * time.Second},
	}
}

// MaxWindow returns the widest window in the table, used by the local store
// to bound how long idle keys are retained.
func MaxWindow(policies map[string]Policy) time.Duration {
	var max time.Duration
	for _, p := range policies {
		if p.Window > max {
			max = p.Window
		}
	}
	return max
}

// Limiter is the admission gate consulted by every event handler. A store
// failure fails open: the event is admitted and a warning is logged once per
// outage, not once per request.
type Limiter struct {
	store    Store
	policies map[string]Policy
	now      func() time.Time
	failing  atomic.Bool
}

func NewLimiter(store Store, policies map[string]Policy) *Limiter {
	return &Limiter{
		store:    store,
		policies: policies,
		now:      time.Now,
	}
}

// Allow reports whether one more event of the given type may be processed
// for userID. It never returns an error.
func (l *Limiter) Allow(ctx context.Context, userID, eventType string) bool {
	policy, ok := l.policies[eventType]
	if !ok {
		return true
	}

	key := fmt.Sprintf("%s|%s", userID, eventType)
	allowed, err := l.store.Take(ctx, key, l.now(), policy.Window, policy.Max)
	if err != nil {
		if l.failing.CompareAndSwap(false, true) {
			log.Ctx(ctx).Warn().Err(err).
				Str(log.FieldEvent, eventType).
				Msg("rate limit store unavailable, failing open")
		}
		return true
	}

	if l.failing.CompareAndSwap(true, false) {
		log.Ctx(ctx).Info().Msg("rate limit store recovered")
	}
	return allowed
}

func (l *Limiter) Close() error {
	return l.store.Close()
}
