package service

import (
	"context"

	"github.com/Amatex1/pryde-backend-sub002/internal/domain"
	"github.com/Amatex1/pryde-backend-sub002/internal/hub"
)

type RealtimeService interface {
	HandleAuth(ctx context.Context, client *hub.Client, token string) error
	HandleJoinRoom(ctx context.Context, client *hub.Client, room string) error
	HandleLeaveRoom(ctx context.Context, client *hub.Client, room string) error
	HandleDirectMessage(ctx context.Context, client *hub.Client, msg domain.DirectMessageIn) error
	HandleRoomMessage(ctx context.Context, client *hub.Client, msg domain.RoomMessageIn) error
	HandleTyping(ctx context.Context, client *hub.Client, msg domain.TypingIn) error
	HandleDisconnect(ctx context.Context, client *hub.Client) error
}
