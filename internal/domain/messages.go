package domain

// WebSocket message types from client.
const (
	MsgTypeAuth          = "auth"
	MsgTypeJoinRoom      = "join_room"
	MsgTypeLeaveRoom     = "leave_room"
	MsgTypeDirectMessage = "direct_message"
	MsgTypeRoomMessage   = "room_message"
	MsgTypeTyping        = "typing"
	MsgTypePing          = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeAuthResult   = "auth_result"
	MsgTypeRoomJoined   = "room_joined"
	MsgTypeRoomLeft     = "room_left"
	MsgTypeMessageAck   = "message_ack"
	MsgTypePresence     = "presence"
	MsgTypeNotification = "notification"
	MsgTypeError        = "error"
	MsgTypePong         = "pong"
)

// Error codes
const (
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeBadRequest     = "BAD_REQUEST"
	ErrCodeInvalidPayload = "INVALID_PAYLOAD"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodePersistFailed  = "PERSIST_FAILED"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type AuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type JoinRoomMessage struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type LeaveRoomMessage struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type DirectMessageIn struct {
	Type          string `json:"type"`
	RecipientID   string `json:"recipient_id"`
	Content       string `json:"content"`
	Attachment    string `json:"attachment,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type RoomMessageIn struct {
	Type          string `json:"type"`
	Room          string `json:"room"`
	Content       string `json:"content"`
	Attachment    string `json:"attachment,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type TypingIn struct {
	Type        string `json:"type"`
	Room        string `json:"room,omitempty"`
	RecipientID string `json:"recipient_id,omitempty"`
	IsTyping    bool   `json:"is_typing"`
}

// Server -> Client messages

type AuthResultMessage struct {
	Type        string `json:"type"`
	Success     bool   `json:"success"`
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Message     string `json:"message,omitempty"`
}

type RoomJoinedMessage struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type RoomLeftMessage struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

// MessageAck is the single acknowledgment returned for every send attempt.
// A duplicate submission is acknowledged as a success with Duplicate set and
// the original message id echoed back.
type MessageAck struct {
	Type          string `json:"type"`
	Success       bool   `json:"success"`
	MessageID     string `json:"message_id,omitempty"`
	Duplicate     bool   `json:"duplicate,omitempty"`
	Code          string `json:"code,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type MessageOut struct {
	Type          string `json:"type"`
	MessageID     string `json:"message_id"`
	SenderID      string `json:"sender_id"`
	SenderName    string `json:"sender_name,omitempty"`
	RecipientID   string `json:"recipient_id,omitempty"`
	Room          string `json:"room,omitempty"`
	Content       string `json:"content"`
	Attachment    string `json:"attachment,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}

type TypingOut struct {
	Type     string `json:"type"`
	FromID   string `json:"from_id"`
	FromName string `json:"from_name,omitempty"`
	Room     string `json:"room,omitempty"`
	IsTyping bool   `json:"is_typing"`
}

type PresenceMessage struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

type NotificationOut struct {
	Type         string `json:"type"`
	Notification string `json:"notification_type"`
	SenderID     string `json:"sender_id"`
	Message      string `json:"message"`
	Link         string `json:"link,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
