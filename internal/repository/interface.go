// Package repository defines the collaborator interfaces the realtime core
// consumes. The document store, user directory, push transport and token
// verification all live in other services; the core depends on these
// contracts only.
package repository

import (
	"context"

	"github.com/Amatex1/pryde-backend-sub002/internal/domain"
)

// MessageStore persists delivered records.
type MessageStore interface {
	Create(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	FindByID(ctx context.Context, id string) (*domain.Message, error)
}

// NotificationStore persists notification records.
type NotificationStore interface {
	Create(ctx context.Context, n *domain.Notification) error
}

// UserDirectory resolves identities to directory entries (display name, role).
type UserDirectory interface {
	Find(ctx context.Context, ids []string) ([]domain.UserInfo, error)
}

// PushPayload is the opaque payload handed to the external push transport.
type PushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Link  string `json:"link,omitempty"`
}

// PushResult reports the outcome of a push attempt.
type PushResult struct {
	Success bool
	Reason  string
}

// PushSink is the fire-and-forget external push transport. Send never
// returns an error; failures are reported in the result and logged by the
// caller.
type PushSink interface {
	Send(ctx context.Context, userID string, payload PushPayload) PushResult
}

// TokenVerifier decodes and validates a client auth token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}
