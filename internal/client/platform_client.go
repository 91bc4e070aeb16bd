// Package client talks to the platform core API: the document store that
// owns message and notification records, the user directory, token
// verification, and the push gateway. The realtime service consumes these
// over plain internal HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Amatex1/pryde-backend-sub002/internal/domain"
	"github.com/Amatex1/pryde-backend-sub002/internal/repository"
	"github.com/Amatex1/pryde-backend-sub002/pkg/log"
)

type PlatformClient struct {
	baseURL string
	http    *http.Client
}

func NewPlatformClient(baseURL string, timeout time.Duration) *PlatformClient {
	return &PlatformClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *PlatformClient) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("platform request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("platform request %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *PlatformClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("platform request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("platform request %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// MessageStore

func (c *PlatformClient) Create(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	var created domain.Message
	if err := c.post(ctx, "/internal/v1/messages", msg, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *PlatformClient) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	if err := c.get(ctx, "/internal/v1/messages/"+url.PathEscape(id), &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, nil
	}
	return &msg, nil
}

// NotificationStore

func (c *PlatformClient) CreateNotification(ctx context.Context, n *domain.Notification) error {
	return c.post(ctx, "/internal/v1/notifications", n, nil)
}

// UserDirectory

func (c *PlatformClient) Find(ctx context.Context, ids []string) ([]domain.UserInfo, error) {
	var out struct {
		Users []domain.UserInfo `json:"users"`
	}
	if err := c.post(ctx, "/internal/v1/users/lookup", map[string][]string{"ids": ids}, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// TokenVerifier

func (c *PlatformClient) Verify(ctx context.Context, token string) (domain.Identity, error) {
	var out struct {
		Valid       bool   `json:"valid"`
		UserID      string `json:"user_id"`
		SessionID   string `json:"session_id"`
		DisplayName string `json:"display_name"`
		Role        string `json:"role"`
	}
	if err := c.post(ctx, "/internal/v1/auth/verify", map[string]string{"token": token}, &out); err != nil {
		return domain.Identity{}, err
	}
	if !out.Valid {
		return domain.Identity{}, fmt.Errorf("invalid token")
	}
	return domain.Identity{
		UserID:      out.UserID,
		SessionID:   out.SessionID,
		DisplayName: out.DisplayName,
		Role:        out.Role,
	}, nil
}

// PushSink

func (c *PlatformClient) Send(ctx context.Context, userID string, payload repository.PushPayload) repository.PushResult {
	in := struct {
		UserID  string                 `json:"user_id"`
		Payload repository.PushPayload `json:"payload"`
	}{UserID: userID, Payload: payload}

	if err := c.post(ctx, "/internal/v1/push", in, nil); err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("push gateway call failed")
		return repository.PushResult{Success: false, Reason: err.Error()}
	}
	return repository.PushResult{Success: true}
}

// notificationStore adapts PlatformClient to the NotificationStore
// interface, whose method name collides with MessageStore.Create.
type notificationStore struct {
	client *PlatformClient
}

func (s notificationStore) Create(ctx context.Context, n *domain.Notification) error {
	return s.client.CreateNotification(ctx, n)
}

// Notifications returns the client's NotificationStore view.
func (c *PlatformClient) Notifications() repository.NotificationStore {
	return notificationStore{client: c}
}
