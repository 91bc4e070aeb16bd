package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amatex1/pryde-backend-sub002/internal/config"
	"github.com/Amatex1/pryde-backend-sub002/internal/domain"
	"github.com/Amatex1/pryde-backend-sub002/internal/hub"
	"github.com/Amatex1/pryde-backend-sub002/internal/repository"
)

type recordingStore struct {
	mu      sync.Mutex
	created []*domain.Notification
	fail    bool
}

func (s *recordingStore) Create(_ context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("notification store down")
	}
	s.created = append(s.created, n)
	return nil
}

type recordingPush struct {
	mu     sync.Mutex
	sent   []repository.PushPayload
	result repository.PushResult
}

func (p *recordingPush) Send(_ context.Context, _ string, payload repository.PushPayload) repository.PushResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, payload)
	return p.result
}

func TestNotifyPersistsEmitsAndPushes(t *testing.T) {
	h := hub.NewHub()
	store := &recordingStore{}
	push := &recordingPush{result: repository.PushResult{Success: true}}
	n := NewNotifier(h, store, push)

	c := hub.NewClient("bob-1", h, nil, config.WebSocketConfig{})
	h.Register(c)
	h.Bind("bob", c)

	n.Notify(context.Background(), "bob", "alice", domain.NotifKindDirectMessage, "Alice sent you a message", "/messages/alice")

	require.Len(t, store.created, 1)
	record := store.created[0]
	assert.Equal(t, "bob", record.RecipientID)
	assert.Equal(t, "alice", record.SenderID)
	assert.Equal(t, 1, record.Count)
	assert.NotEmpty(t, record.ID)

	select {
	case data := <-c.Send:
		var evt map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &evt))
		assert.Equal(t, domain.MsgTypeNotification, evt["type"])
		assert.Equal(t, "alice", evt["sender_id"])
		assert.Equal(t, "/messages/alice", evt["link"])
	default:
		t.Fatal("expected a notification event on the live connection")
	}

	require.Len(t, push.sent, 1)
	assert.Equal(t, "Alice sent you a message", push.sent[0].Body)
}

func TestNotifyOfflineRecipientStillPersists(t *testing.T) {
	h := hub.NewHub()
	store := &recordingStore{}
	push := &recordingPush{result: repository.PushResult{Success: true}}
	n := NewNotifier(h, store, push)

	n.Notify(context.Background(), "ghost", "alice", domain.NotifKindDirectMessage, "hi", "")

	assert.Len(t, store.created, 1, "record persists for later pull even with no live connections")
	assert.Len(t, push.sent, 1)
}

func TestNotifySwallowsStoreFailure(t *testing.T) {
	h := hub.NewHub()
	store := &recordingStore{fail: true}
	push := &recordingPush{result: repository.PushResult{Success: false, Reason: "no device token"}}
	n := NewNotifier(h, store, push)

	// Must not panic or surface the failure.
	n.Notify(context.Background(), "bob", "alice", domain.NotifKindDirectMessage, "hi", "")

	assert.Len(t, push.sent, 1, "push still attempted after a store failure")
}
