// Package dedup makes message creation idempotent. Identical (sender,
// recipient, content) tuples inside one time bucket collapse to a single
// persisted record, which absorbs client retransmissions after ack timeouts.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Amatex1/pryde-backend-sub002/internal/domain"
	"github.com/Amatex1/pryde-backend-sub002/internal/repository"
	"github.com/Amatex1/pryde-backend-sub002/pkg/log"
)

// Deduper performs idempotent record creation. Concurrent identical sends in
// the same process share one creator invocation via singleflight; earlier
// sends inside the TTL are detected through the fingerprint store.
type Deduper struct {
	store    Store
	messages repository.MessageStore
	bucket   time.Duration
	ttl      time.Duration
	now      func() time.Time
	group    singleflight.Group
	failing  atomic.Bool
}

func NewDeduper(store Store, messages repository.MessageStore, bucket, ttl time.Duration) *Deduper {
	return &Deduper{
		store:    store,
		messages: messages,
		bucket:   bucket,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Fingerprint hashes (sender, recipient, normalized content, time bucket).
// The bucket rounds the send time down so near-simultaneous retries hash
// identically.
func (d *Deduper) Fingerprint(senderID, recipientKey, content string, at time.Time) string {
	bucket := at.Truncate(d.bucket).Unix()
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%d", senderID, recipientKey, normalize(content), bucket)
	return hex.EncodeToString(h.Sum(nil))
}

// normalize collapses whitespace runs so trivially reformatted retries still
// match.
func normalize(content string) string {
	return strings.Join(strings.Fields(content), " ")
}

type result struct {
	msg       *domain.Message
	duplicate bool
}

// CreateIfAbsent returns the record for the fingerprint, invoking creator to
// persist it only when no live record exists. The fingerprint entry is
// written after creator succeeds, never before: a failed persist must stay
// retryable. Store failures fail open and the record is created.
func (d *Deduper) CreateIfAbsent(ctx context.Context, fingerprint string, creator func(ctx context.Context) (*domain.Message, error)) (*domain.Message, bool, error) {
	v, err, _ := d.group.Do(fingerprint, func() (interface{}, error) {
		if msg := d.lookup(ctx, fingerprint); msg != nil {
			return result{msg: msg, duplicate: true}, nil
		}

		msg, err := creator(ctx)
		if err != nil {
			return nil, err
		}

		if err := d.store.Put(ctx, fingerprint, msg.ID, d.ttl); err != nil {
			d.warnOnce(ctx, err)
		} else {
			d.failing.Store(false)
		}
		return result{msg: msg, duplicate: false}, nil
	})
	if err != nil {
		return nil, false, err
	}

	r := v.(result)
	return r.msg, r.duplicate, nil
}

// lookup resolves a live fingerprint entry to its persisted record. Any
// failure (store outage, record since deleted) is treated as absent.
func (d *Deduper) lookup(ctx context.Context, fingerprint string) *domain.Message {
	recordID, ok, err := d.store.Get(ctx, fingerprint)
	if err != nil {
		d.warnOnce(ctx, err)
		return nil
	}
	if !ok {
		return nil
	}
	d.failing.Store(false)

	msg, err := d.messages.FindByID(ctx, recordID)
	if err != nil || msg == nil {
		log.Ctx(ctx).Debug().Str(log.FieldMessageID, recordID).
			Msg("fingerprint hit but record not found, creating anew")
		return nil
	}
	return msg
}

func (d *Deduper) warnOnce(ctx context.Context, err error) {
	if d.failing.CompareAndSwap(false, true) {
		log.Ctx(ctx).Warn().Err(err).Msg("dedup store unavailable, failing open")
	}
}

func (d *Deduper) Close() error {
	return d.store.Close()
}
