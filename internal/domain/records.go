package domain

import "time"

// Message is a delivered record: a direct message or a room broadcast item.
// The persistence collaborator owns it; the realtime core creates it at most
// once per fingerprint and reads it back for re-emission on duplicates.
type Message struct {
	ID            string    `json:"id"`
	SenderID      string    `json:"sender_id"`
	RecipientID   string    `json:"recipient_id,omitempty"`
	Room          string    `json:"room,omitempty"`
	Content       string    `json:"content"`
	Attachment    string    `json:"attachment,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Notification is a persisted notification record. Count is pinned at 1:
// notification batching is disallowed by platform policy and must not be
// reintroduced here.
type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	SenderID    string    `json:"sender_id"`
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	Link        string    `json:"link,omitempty"`
	Count       int       `json:"count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notification kinds emitted by the realtime core.
const (
	NotifKindDirectMessage = "direct_message"
)

// UserInfo is the directory entry for an identity, as returned by the user
// directory collaborator and cached by the registry.
type UserInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// Identity is the decoded result of a verified auth token.
type Identity struct {
	UserID      string
	SessionID   string
	DisplayName string
	Role        string
}
