package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Amatex1/pryde-backend-sub002/internal/config"
	"github.com/Amatex1/pryde-backend-sub002/internal/domain"
	"github.com/Amatex1/pryde-backend-sub002/internal/hub"
	"github.com/Amatex1/pryde-backend-sub002/internal/service"
	"github.com/Amatex1/pryde-backend-sub002/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	hub     *hub.Hub
	service service.RealtimeService
	wsCfg   config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, svc service.RealtimeService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
	}
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleMessage, h.handleClose)
}

// handleMessage dispatches one inbound frame. Each frame is handled on the
// connection's read goroutine; anything slow inside a handler happens at an
// I/O boundary, never while holding registry state.
func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendEvent(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid message format"))
		return
	}

	ctx := context.Background()
	l := log.L().With().Str(log.FieldConnID, client.ID).Str(log.FieldEvent, base.Type).Logger()
	ctx = log.WithLogger(ctx, l)

	// Everything except auth and ping requires a verified identity.
	switch base.Type {
	case domain.MsgTypeAuth, domain.MsgTypePing:
	default:
		if !client.Session.IsAuthenticated() {
			client.SendEvent(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "authenticate first"))
			return
		}
	}

	switch base.Type {
	case domain.MsgTypeAuth:
		var msg domain.AuthMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendEvent(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid auth message"))
			return
		}
		if err := h.service.HandleAuth(ctx, client, msg.Token); err != nil {
			l.Debug().Err(err).Msg("auth failed")
		}

	case domain.MsgTypeJoinRoom:
		var msg domain.JoinRoomMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendEvent(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid join_room message"))
			return
		}
		h.service.HandleJoinRoom(ctx, client, msg.Room)

	case domain.MsgTypeLeaveRoom:
		var msg domain.LeaveRoomMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendEvent(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid leave_room message"))
			return
		}
		h.service.HandleLeaveRoom(ctx, client, msg.Room)

	case domain.MsgTypeDirectMessage:
		var msg domain.DirectMessageIn
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendEvent(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid direct_message"))
			return
		}
		h.service.HandleDirectMessage(ctx, client, msg)

	case domain.MsgTypeRoomMessage:
		var msg domain.RoomMessageIn
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendEvent(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid room_message"))
			return
		}
		h.service.HandleRoomMessage(ctx, client, msg)

	case domain.MsgTypeTyping:
		var msg domain.TypingIn
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		h.service.HandleTyping(ctx, client, msg)

	case domain.MsgTypePing:
		client.SendEvent(map[string]string{"type": domain.MsgTypePong})

	default:
		client.SendEvent(domain.NewErrorMessage(domain.ErrCodeBadRequest, "unknown message type"))
	}
}

func (h *WSHandler) handleClose(client *hub.Client) {
	h.service.HandleDisconnect(context.Background(), client)
}

func (h *WSHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/realtime/ws", h.HandleWebSocket)
}
