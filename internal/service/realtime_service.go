// Package service orchestrates inbound realtime events: validate, rate
// limit, dedup, persist, emit, ack. Every send attempt produces exactly one
// acknowledgment, on every code path.
package service

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Amatex1/pryde-backend-sub002/internal/audit"
	"github.com/Amatex1/pryde-backend-sub002/internal/dedup"
	"github.com/Amatex1/pryde-backend-sub002/internal/domain"
	"github.com/Amatex1/pryde-backend-sub002/internal/hub"
	"github.com/Amatex1/pryde-backend-sub002/internal/notify"
	"github.com/Amatex1/pryde-backend-sub002/internal/ratelimit"
	"github.com/Amatex1/pryde-backend-sub002/internal/repository"
	"github.com/Amatex1/pryde-backend-sub002/internal/usercache"
	"github.com/Amatex1/pryde-backend-sub002/pkg/log"
)

// Validation limits for message payloads.
const (
	MaxContentRunes  = 2000
	MaxAttachmentLen = 512
	MaxRoomNameLen   = 64
)

type realtimeService struct {
	hub      *hub.Hub
	limiter  *ratelimit.Limiter
	deduper  *dedup.Deduper
	messages repository.MessageStore
	notifier *notify.Notifier
	users    *usercache.Cache
	verifier repository.TokenVerifier
	now      func() time.Time
}

func NewRealtimeService(
	h *hub.Hub,
	limiter *ratelimit.Limiter,
	deduper *dedup.Deduper,
	messages repository.MessageStore,
	notifier *notify.Notifier,
	users *usercache.Cache,
	verifier repository.TokenVerifier,
) RealtimeService {
	return &realtimeService{
		hub:      h,
		limiter:  limiter,
		deduper:  deduper,
		messages: messages,
		notifier: notifier,
		users:    users,
		verifier: verifier,
		now:      time.Now,
	}
}

// acker delivers the one acknowledgment a send attempt is owed. The
// sync.Once makes double-acking impossible no matter which code path runs.
type acker struct {
	client        *hub.Client
	correlationID string
	once          sync.Once
}

func newAcker(c *hub.Client, correlationID string) *acker {
	return &acker{client: c, correlationID: correlationID}
}

func (a *acker) success(messageID string, duplicate bool) {
	a.once.Do(func() {
		a.client.SendEvent(&domain.MessageAck{
			Type:          domain.MsgTypeMessageAck,
			Success:       true,
			MessageID:     messageID,
			Duplicate:     duplicate,
			CorrelationID: a.correlationID,
		})
	})
}

func (a *acker) fail(code string) {
	a.once.Do(func() {
		a.client.SendEvent(&domain.MessageAck{
			Type:          domain.MsgTypeMessageAck,
			Success:       false,
			Code:          code,
			CorrelationID: a.correlationID,
		})
	})
}

func (s *realtimeService) HandleAuth(ctx context.Context, c *hub.Client, token string) error {
	ident, err := s.verifier.Verify(ctx, token)
	if err != nil {
		audit.Log(ctx, audit.ActionAuthFailed, "", "token rejected")
		c.SendEvent(&domain.AuthResultMessage{
			Type:    domain.MsgTypeAuthResult,
			Success: false,
			Message: "authentication failed",
		})
		return err
	}

	// Fill role and display name from the directory cache when the token
	// does not carry them.
	if ident.DisplayName == "" || ident.Role == "" {
		if info, err := s.users.Get(ctx, ident.UserID); err == nil {
			if ident.DisplayName == "" {
				ident.DisplayName = info.DisplayName
			}
			if ident.Role == "" {
				ident.Role = info.Role
			}
		}
	}

	// Re-auth under a different identity must release the old binding, with
	// its presence transition, or the previous user stays online forever on a
	// dangling connection entry.
	if prev := c.Session.GetUserID(); prev != "" && prev != ident.UserID {
		if wentOffline := s.hub.Unbind(prev, c); wentOffline {
			s.hub.BroadcastPresence(prev, false)
		}
	}

	c.Session.Authenticate(ident)

	if cameOnline := s.hub.Bind(ident.UserID, c); cameOnline {
		s.hub.BroadcastPresence(ident.UserID, true)
	}

	audit.Log(ctx, audit.ActionAuth, ident.UserID, "client authenticated")
	return c.SendEvent(&domain.AuthResultMessage{
		Type:        domain.MsgTypeAuthResult,
		Success:     true,
		UserID:      ident.UserID,
		DisplayName: ident.DisplayName,
	})
}

func (s *realtimeService) HandleJoinRoom(ctx context.Context, c *hub.Client, room string) error {
	if !c.Session.IsAuthenticated() {
		return c.SendEvent(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "not authenticated"))
	}
	if room == "" || utf8.RuneCountInString(room) > MaxRoomNameLen {
		return c.SendEvent(domain.NewErrorMessage(domain.ErrCodeInvalidPayload, "invalid room name"))
	}
	if !s.limiter.Allow(ctx, c.Session.GetUserID(), domain.MsgTypeJoinRoom) {
		return c.SendEvent(domain.NewErrorMessage(domain.ErrCodeRateLimited, "too many room joins"))
	}

	s.hub.JoinRoom(room, c)
	c.Session.JoinRoom(room)

	audit.LogWithDetail(ctx, audit.ActionJoinRoom, c.Session.GetUserID(), room, "joined room")
	return c.SendEvent(&domain.RoomJoinedMessage{Type: domain.MsgTypeRoomJoined, Room: room})
}

func (s *realtimeService) HandleLeaveRoom(ctx context.Context, c *hub.Client, room string) error {
	if !c.Session.IsAuthenticated() {
		return c.SendEvent(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "not authenticated"))
	}
	if !c.Session.InRoom(room) {
		return nil
	}

	s.hub.LeaveRoom(room, c)
	c.Session.LeaveRoom(room)

	audit.LogWithDetail(ctx, audit.ActionLeaveRoom, c.Session.GetUserID(), room, "left room")
	return c.SendEvent(&domain.RoomLeftMessage{Type: domain.MsgTypeRoomLeft, Room: room})
}

func (s *realtimeService) HandleDirectMessage(ctx context.Context, c *hub.Client, in domain.DirectMessageIn) error {
	ack := newAcker(c, in.CorrelationID)

	if !c.Session.IsAuthenticated() {
		ack.fail(domain.ErrCodeUnauthorized)
		return nil
	}
	if in.RecipientID == "" || !validContent(in.Content, in.Attachment) {
		ack.fail(domain.ErrCodeInvalidPayload)
		return nil
	}

	senderID := c.Session.GetUserID()
	if !s.limiter.Allow(ctx, senderID, domain.MsgTypeDirectMessage) {
		ack.fail(domain.ErrCodeRateLimited)
		return nil
	}

	fp := s.deduper.Fingerprint(senderID, in.RecipientID, in.Content, s.now())
	msg, duplicate, err := s.deduper.CreateIfAbsent(ctx, fp, func(ctx context.Context) (*domain.Message, error) {
		return s.messages.Create(ctx, &domain.Message{
			ID:            uuid.NewString(),
			SenderID:      senderID,
			RecipientID:   in.RecipientID,
			Content:       in.Content,
			Attachment:    in.Attachment,
			CorrelationID: in.CorrelationID,
			CreatedAt:     s.now().UTC(),
		})
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldRecipient, in.RecipientID).Msg("failed to persist direct message")
		ack.fail(domain.ErrCodePersistFailed)
		return nil
	}

	// A duplicate was already delivered by the original attempt; only the
	// ack is replayed, carrying the original record id.
	if duplicate {
		ack.success(msg.ID, true)
		return nil
	}

	senderName := c.Session.GetDisplayName()
	s.hub.SendToUser(in.RecipientID, &domain.MessageOut{
		Type:          domain.MsgTypeDirectMessage,
		MessageID:     msg.ID,
		SenderID:      senderID,
		SenderName:    senderName,
		RecipientID:   in.RecipientID,
		Content:       msg.Content,
		Attachment:    msg.Attachment,
		CorrelationID: msg.CorrelationID,
		Timestamp:     msg.CreatedAt.UnixMilli(),
	})

	ack.success(msg.ID, false)

	// Notification record and external push run detached; their failures
	// never reach the already-acked sender.
	bgCtx := context.WithoutCancel(ctx)
	go s.notifier.Notify(bgCtx, in.RecipientID, senderID, domain.NotifKindDirectMessage,
		senderName+" sent you a message", "/messages/"+senderID)

	return nil
}

func (s *realtimeService) HandleRoomMessage(ctx context.Context, c *hub.Client, in domain.RoomMessageIn) error {
	ack := newAcker(c, in.CorrelationID)

	if !c.Session.IsAuthenticated() {
		ack.fail(domain.ErrCodeUnauthorized)
		return nil
	}
	if in.Room == "" || !validContent(in.Content, in.Attachment) {
		ack.fail(domain.ErrCodeInvalidPayload)
		return nil
	}

	senderID := c.Session.GetUserID()
	if !s.limiter.Allow(ctx, senderID, domain.MsgTypeRoomMessage) {
		ack.fail(domain.ErrCodeRateLimited)
		return nil
	}

	fp := s.deduper.Fingerprint(senderID, "room:"+in.Room, in.Content, s.now())
	msg, duplicate, err := s.deduper.CreateIfAbsent(ctx, fp, func(ctx context.Context) (*domain.Message, error) {
		return s.messages.Create(ctx, &domain.Message{
			ID:            uuid.NewString(),
			SenderID:      senderID,
			Room:          in.Room,
			Content:       in.Content,
			Attachment:    in.Attachment,
			CorrelationID: in.CorrelationID,
			CreatedAt:     s.now().UTC(),
		})
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldRoom, in.Room).Msg("failed to persist room message")
		ack.fail(domain.ErrCodePersistFailed)
		return nil
	}

	if duplicate {
		ack.success(msg.ID, true)
		return nil
	}

	// An empty room still persists the record; fan-out is simply zero.
	s.hub.BroadcastToRoom(in.Room, &domain.MessageOut{
		Type:          domain.MsgTypeRoomMessage,
		MessageID:     msg.ID,
		SenderID:      senderID,
		SenderName:    c.Session.GetDisplayName(),
		Room:          in.Room,
		Content:       msg.Content,
		Attachment:    msg.Attachment,
		CorrelationID: msg.CorrelationID,
		Timestamp:     msg.CreatedAt.UnixMilli(),
	}, c)

	ack.success(msg.ID, false)
	return nil
}

// HandleTyping is fire-and-forget: no acks, and over-limit events are
// silently dropped.
func (s *realtimeService) HandleTyping(ctx context.Context, c *hub.Client, in domain.TypingIn) error {
	if !c.Session.IsAuthenticated() {
		return nil
	}
	if in.Room == "" && in.RecipientID == "" {
		return nil
	}
	if !s.limiter.Allow(ctx, c.Session.GetUserID(), domain.MsgTypeTyping) {
		return nil
	}

	out := &domain.TypingOut{
		Type:     domain.MsgTypeTyping,
		FromID:   c.Session.GetUserID(),
		FromName: c.Session.GetDisplayName(),
		Room:     in.Room,
		IsTyping: in.IsTyping,
	}

	if in.Room != "" {
		if !c.Session.InRoom(in.Room) {
			return nil
		}
		s.hub.BroadcastToRoom(in.Room, out, c)
		return nil
	}

	s.hub.SendToUser(in.RecipientID, out)
	return nil
}

func (s *realtimeService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	userID := c.Session.GetUserID()
	if wentOffline := s.hub.Unregister(c); wentOffline {
		s.hub.BroadcastPresence(userID, false)
	}
	if userID != "" {
		audit.Log(ctx, audit.ActionDisconnect, userID, "client disconnected")
	}
	return nil
}

// validContent requires content or an attachment, within size limits.
func validContent(content, attachment string) bool {
	if content == "" && attachment == "" {
		return false
	}
	if utf8.RuneCountInString(content) > MaxContentRunes {
		return false
	}
	if len(attachment) > MaxAttachmentLen {
		return false
	}
	return true
}
