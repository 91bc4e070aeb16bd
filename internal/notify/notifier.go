// Package notify builds notification records and fans them out to a
// recipient's live connections, with a best-effort external push. Everything
// here runs detached from the sender's ack path.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Amatex1/pryde-backend-sub002/internal/domain"
	"github.com/Amatex1/pryde-backend-sub002/internal/hub"
	"github.com/Amatex1/pryde-backend-sub002/internal/repository"
	"github.com/Amatex1/pryde-backend-sub002/pkg/log"
)

type Notifier struct {
	hub   *hub.Hub
	store repository.NotificationStore
	push  repository.PushSink
}

func NewNotifier(h *hub.Hub, store repository.NotificationStore, push repository.PushSink) *Notifier {
	return &Notifier{
		hub:   h,
		store: store,
		push:  push,
	}
}

// Notify persists a notification record, emits it to the recipient's live
// connections and fires the external push. Failures are logged and swallowed:
// nothing here may surface to the original sender. Call from a detached
// goroutine.
func (n *Notifier) Notify(ctx context.Context, recipientID, senderID, kind, message, link string) {
	record := &domain.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		SenderID:    senderID,
		Kind:        kind,
		Message:     message,
		Link:        link,
		Count:       1,
		CreatedAt:   time.Now().UTC(),
	}

	if err := n.store.Create(ctx, record); err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str(log.FieldRecipient, recipientID).
			Msg("failed to persist notification")
	}

	// Zero live connections means no realtime delivery; the persisted
	// record is still there for later pull.
	n.hub.SendToUser(recipientID, &domain.NotificationOut{
		Type:         domain.MsgTypeNotification,
		Notification: kind,
		SenderID:     senderID,
		Message:      message,
		Link:         link,
		Timestamp:    record.CreatedAt.UnixMilli(),
	})

	result := n.push.Send(ctx, recipientID, repository.PushPayload{
		Title: kind,
		Body:  message,
		Link:  link,
	})
	if !result.Success {
		log.Ctx(ctx).Debug().
			Str(log.FieldRecipient, recipientID).
			Str("reason", result.Reason).
			Msg("push delivery skipped")
	}
}
