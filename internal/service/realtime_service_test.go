package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amatex1/pryde-backend-sub002/internal/config"
	"github.com/Amatex1/pryde-backend-sub002/internal/dedup"
	"github.com/Amatex1/pryde-backend-sub002/internal/domain"
	"github.com/Amatex1/pryde-backend-sub002/internal/hub"
	"github.com/Amatex1/pryde-backend-sub002/internal/notify"
	"github.com/Amatex1/pryde-backend-sub002/internal/ratelimit"
	"github.com/Amatex1/pryde-backend-sub002/internal/repository"
	"github.com/Amatex1/pryde-backend-sub002/internal/usercache"
)

// Collaborator mocks

type mockMessageStore struct {
	mu       sync.Mutex
	records  map[string]*domain.Message
	creates  int
	failNext bool
}

func newMockMessageStore() *mockMessageStore {
	return &mockMessageStore{records: make(map[string]*domain.Message)}
}

func (m *mockMessageStore) Create(_ context.Context, msg *domain.Message) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return nil, errors.New("document store write failed")
	}
	m.creates++
	m.records[msg.ID] = msg
	return msg, nil
}

func (m *mockMessageStore) FindByID(_ context.Context, id string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id], nil
}

func (m *mockMessageStore) createCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates
}

type mockNotificationStore struct {
	mu      sync.Mutex
	created []*domain.Notification
}

func (m *mockNotificationStore) Create(_ context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, n)
	return nil
}

func (m *mockNotificationStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created)
}

type mockDirectory struct{}

func (mockDirectory) Find(_ context.Context, ids []string) ([]domain.UserInfo, error) {
	infos := make([]domain.UserInfo, 0, len(ids))
	for _, id := range ids {
		infos = append(infos, domain.UserInfo{ID: id, DisplayName: "name-" + id, Role: "member"})
	}
	return infos, nil
}

type mockPushSink struct {
	mu    sync.Mutex
	calls int
}

func (m *mockPushSink) Send(context.Context, string, repository.PushPayload) repository.PushResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return repository.PushResult{Success: true}
}

type mockVerifier struct {
	identities map[string]domain.Identity
}

func (m *mockVerifier) Verify(_ context.Context, token string) (domain.Identity, error) {
	ident, ok := m.identities[token]
	if !ok {
		return domain.Identity{}, errors.New("invalid token")
	}
	return ident, nil
}

// Test fixture

type fixture struct {
	svc      *realtimeService
	hub      *hub.Hub
	messages *mockMessageStore
	notifs   *mockNotificationStore
	push     *mockPushSink
}

func newFixture(t *testing.T, policies map[string]ratelimit.Policy) *fixture {
	t.Helper()

	messages := newMockMessageStore()
	notifs := &mockNotificationStore{}
	push := &mockPushSink{}

	rateStore := ratelimit.NewLocalStore(ratelimit.MaxWindow(policies), time.Hour)
	t.Cleanup(func() { rateStore.Close() })
	dedupStore := dedup.NewLocalStore(time.Hour)
	t.Cleanup(func() { dedupStore.Close() })

	h := hub.NewHub()
	users := usercache.New(mockDirectory{}, time.Minute, time.Hour)
	t.Cleanup(users.Close)

	verifier := &mockVerifier{identities: map[string]domain.Identity{
		"token-alice": {UserID: "alice", SessionID: "s1", DisplayName: "Alice"},
		"token-bob":   {UserID: "bob", SessionID: "s2", DisplayName: "Bob"},
	}}

	svc := NewRealtimeService(
		h,
		ratelimit.NewLimiter(rateStore, policies),
		dedup.NewDeduper(dedupStore, messages, 5*time.Second, 30*time.Second),
		messages,
		notify.NewNotifier(h, notifs, push),
		users,
		verifier,
	).(*realtimeService)

	return &fixture{svc: svc, hub: h, messages: messages, notifs: notifs, push: push}
}

func openPolicies() map[string]ratelimit.Policy {
	return map[string]ratelimit.Policy{
		domain.MsgTypeDirectMessage: {Max: 100, Window: time.Minute},
		domain.MsgTypeRoomMessage:   {Max: 100, Window: time.Minute},
		domain.MsgTypeTyping:        {Max: 100, Window: time.Minute},
		domain.MsgTypeJoinRoom:      {Max: 100, Window: time.Minute},
	}
}

// connect registers an authenticated client for userID.
func (f *fixture) connect(userID, connID string) *hub.Client {
	c := hub.NewClient(connID, f.hub, nil, config.WebSocketConfig{})
	f.hub.Register(c)
	c.Session.Authenticate(domain.Identity{UserID: userID, DisplayName: "name-" + userID})
	f.hub.Bind(userID, c)
	return c
}

func nextEvent(t *testing.T, c *hub.Client) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.Send:
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	default:
		t.Fatal("expected a queued event")
		return nil
	}
}

func drain(c *hub.Client) []map[string]interface{} {
	var events []map[string]interface{}
	for {
		select {
		case data := <-c.Send:
			var m map[string]interface{}
			if json.Unmarshal(data, &m) == nil {
				events = append(events, m)
			}
		default:
			return events
		}
	}
}

func countAcks(events []map[string]interface{}) int {
	n := 0
	for _, e := range events {
		if e["type"] == domain.MsgTypeMessageAck {
			n++
		}
	}
	return n
}

// Tests

func TestAuthSuccessBroadcastsPresence(t *testing.T) {
	f := newFixture(t, openPolicies())
	ctx := context.Background()

	observer := f.connect("bob", "bob-1")
	drain(observer)

	c := hub.NewClient("alice-1", f.hub, nil, config.WebSocketConfig{})
	f.hub.Register(c)

	require.NoError(t, f.svc.HandleAuth(ctx, c, "token-alice"))

	assert.True(t, f.hub.IsOnline("alice"))

	events := drain(c)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, domain.MsgTypeAuthResult, last["type"])
	assert.Equal(t, true, last["success"])
	assert.Equal(t, "alice", last["user_id"])

	obsEvents := drain(observer)
	require.Len(t, obsEvents, 1)
	assert.Equal(t, domain.MsgTypePresence, obsEvents[0]["type"])
	assert.Equal(t, "alice", obsEvents[0]["user_id"])
	assert.Equal(t, true, obsEvents[0]["online"])
}

func TestAuthRejected(t *testing.T) {
	f := newFixture(t, openPolicies())

	c := hub.NewClient("c1", f.hub, nil, config.WebSocketConfig{})
	f.hub.Register(c)

	err := f.svc.HandleAuth(context.Background(), c, "bad-token")
	require.Error(t, err)
	assert.False(t, c.Session.IsAuthenticated())

	evt := nextEvent(t, c)
	assert.Equal(t, domain.MsgTypeAuthResult, evt["type"])
	assert.Equal(t, false, evt["success"])
}

func TestReauthReleasesPreviousIdentity(t *testing.T) {
	f := newFixture(t, openPolicies())
	ctx := context.Background()

	observer := f.connect("carol", "carol-1")
	drain(observer)

	c := hub.NewClient("c1", f.hub, nil, config.WebSocketConfig{})
	f.hub.Register(c)

	require.NoError(t, f.svc.HandleAuth(ctx, c, "token-alice"))
	require.NoError(t, f.svc.HandleAuth(ctx, c, "token-bob"))

	assert.False(t, f.hub.IsOnline("alice"), "old identity must not keep a dangling connection")
	assert.True(t, f.hub.IsOnline("bob"))
	assert.Equal(t, 0, f.hub.SendToUser("alice", &domain.PresenceMessage{Type: domain.MsgTypePresence}),
		"frames for the old identity must not reach the rebound connection")

	// The observer sees three transitions: alice on, alice off, bob on.
	events := drain(observer)
	require.Len(t, events, 3)
	assert.Equal(t, "alice", events[0]["user_id"])
	assert.Equal(t, true, events[0]["online"])
	assert.Equal(t, "alice", events[1]["user_id"])
	assert.Equal(t, false, events[1]["online"])
	assert.Equal(t, "bob", events[2]["user_id"])
	assert.Equal(t, true, events[2]["online"])

	require.NoError(t, f.svc.HandleDisconnect(ctx, c))
	assert.False(t, f.hub.IsOnline("bob"))
	assert.False(t, f.hub.IsOnline("alice"))
}

func TestReauthSameIdentityKeepsSingleBinding(t *testing.T) {
	f := newFixture(t, openPolicies())
	ctx := context.Background()

	c := hub.NewClient("c1", f.hub, nil, config.WebSocketConfig{})
	f.hub.Register(c)

	require.NoError(t, f.svc.HandleAuth(ctx, c, "token-alice"))
	require.NoError(t, f.svc.HandleAuth(ctx, c, "token-alice"))

	assert.True(t, f.hub.IsOnline("alice"))
	assert.Equal(t, 1, f.hub.ConnectionCount("alice"), "token refresh must not duplicate the binding")

	require.NoError(t, f.svc.HandleDisconnect(ctx, c))
	assert.False(t, f.hub.IsOnline("alice"))
}

func TestDirectMessageDelivery(t *testing.T) {
	f := newFixture(t, openPolicies())
	ctx := context.Background()

	sender := f.connect("alice", "alice-1")
	recipient := f.connect("bob", "bob-1")

	require.NoError(t, f.svc.HandleDirectMessage(ctx, sender, domain.DirectMessageIn{
		RecipientID:   "bob",
		Content:       "hello bob",
		CorrelationID: "corr-1",
	}))

	ack := nextEvent(t, sender)
	assert.Equal(t, domain.MsgTypeMessageAck, ack["type"])
	assert.Equal(t, true, ack["success"])
	assert.NotEqual(t, true, ack["duplicate"])
	assert.Equal(t, "corr-1", ack["correlation_id"])
	assert.NotEmpty(t, ack["message_id"])

	events := drain(recipient)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.MsgTypeDirectMessage, events[0]["type"])
	assert.Equal(t, "hello bob", events[0]["content"])
	assert.Equal(t, "alice", events[0]["sender_id"])
	assert.Equal(t, ack["message_id"], events[0]["message_id"])

	assert.Equal(t, 1, f.messages.createCount())
}

func TestDirectMessageDuplicateRetry(t *testing.T) {
	f := newFixture(t, openPolicies())
	ctx := context.Background()

	sender := f.connect("alice", "alice-1")
	recipient := f.connect("bob", "bob-1")

	in := domain.DirectMessageIn{RecipientID: "bob", Content: "hello", CorrelationID: "corr-1"}
	base := time.Now()
	f.svc.now = func() time.Time { return base }

	require.NoError(t, f.svc.HandleDirectMessage(ctx, sender, in))
	first := nextEvent(t, sender)

	// Client retransmits after an ack timeout, still inside the bucket.
	require.NoError(t, f.svc.HandleDirectMessage(ctx, sender, in))
	second := nextEvent(t, sender)

	assert.Equal(t, true, second["success"], "duplicate is a success, not an error")
	assert.Equal(t, true, second["duplicate"])
	assert.Equal(t, first["message_id"], second["message_id"])
	assert.Equal(t, "corr-1", second["correlation_id"])

	assert.Equal(t, 1, f.messages.createCount(), "exactly one record per fingerprint")

	// Only the first attempt reaches the recipient.
	deliveries := 0
	for _, e := range drain(recipient) {
		if e["type"] == domain.MsgTypeDirectMessage {
			deliveries++
		}
	}
	assert.Equal(t, 1, deliveries)
}

func TestConcurrentIdenticalSendsCreateOneRecord(t *testing.T) {
	f := newFixture(t, openPolicies())
	ctx := context.Background()

	sender := f.connect("alice", "alice-1")
	base := time.Now()
	f.svc.now = func() time.Time { return base }

	in := domain.DirectMessageIn{RecipientID: "bob", Content: "hello"}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.svc.HandleDirectMessage(ctx, sender, in)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.messages.createCount(), "concurrent identical sends must persist exactly one record")

	events := drain(sender)
	require.Equal(t, 2, countAcks(events), "each attempt gets exactly one ack")
	var ids []interface{}
	for _, e := range events {
		if e["type"] == domain.MsgTypeMessageAck {
			assert.Equal(t, true, e["success"])
			ids = append(ids, e["message_id"])
		}
	}
	assert.Equal(t, ids[0], ids[1], "both acks must carry the same record id")
}

func TestExactlyOneAckPerPath(t *testing.T) {
	limited := map[string]ratelimit.Policy{
		domain.MsgTypeDirectMessage: {Max: 1, Window: time.Minute},
	}

	tests := []struct {
		name     string
		run      func(t *testing.T, f *fixture, sender *hub.Client)
		wantCode string
		wantOK   bool
	}{
		{
			name: "success",
			run: func(t *testing.T, f *fixture, sender *hub.Client) {
				f.svc.HandleDirectMessage(context.Background(), sender, domain.DirectMessageIn{RecipientID: "bob", Content: "hi"})
			},
			wantOK: true,
		},
		{
			name: "invalid payload",
			run: func(t *testing.T, f *fixture, sender *hub.Client) {
				f.svc.HandleDirectMessage(context.Background(), sender, domain.DirectMessageIn{RecipientID: "bob"})
			},
			wantCode: domain.ErrCodeInvalidPayload,
		},
		{
			name: "missing recipient",
			run: func(t *testing.T, f *fixture, sender *hub.Client) {
				f.svc.HandleDirectMessage(context.Background(), sender, domain.DirectMessageIn{Content: "hi"})
			},
			wantCode: domain.ErrCodeInvalidPayload,
		},
		{
			name: "rate limited",
			run: func(t *testing.T, f *fixture, sender *hub.Client) {
				f.svc.HandleDirectMessage(context.Background(), sender, domain.DirectMessageIn{RecipientID: "bob", Content: "first"})
				drain(sender)
				f.svc.HandleDirectMessage(context.Background(), sender, domain.DirectMessageIn{RecipientID: "bob", Content: "second"})
			},
			wantCode: domain.ErrCodeRateLimited,
		},
		{
			name: "persist failure",
			run: func(t *testing.T, f *fixture, sender *hub.Client) {
				f.messages.failNext = true
				f.svc.HandleDirectMessage(context.Background(), sender, domain.DirectMessageIn{RecipientID: "bob", Content: "hi"})
			},
			wantCode: domain.ErrCodePersistFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, limited)
			sender := f.connect("alice", "alice-1")

			tt.run(t, f, sender)

			events := drain(sender)
			require.Equal(t, 1, countAcks(events), "every send attempt gets exactly one ack")
			var ack map[string]interface{}
			for _, e := range events {
				if e["type"] == domain.MsgTypeMessageAck {
					ack = e
				}
			}
			if tt.wantOK {
				assert.Equal(t, true, ack["success"])
			} else {
				assert.NotEqual(t, true, ack["success"])
				assert.Equal(t, tt.wantCode, ack["code"])
			}
		})
	}
}

func TestUnauthenticatedSendAckedWithError(t *testing.T) {
	f := newFixture(t, openPolicies())

	c := hub.NewClient("c1", f.hub, nil, config.WebSocketConfig{})
	f.hub.Register(c)

	f.svc.HandleDirectMessage(context.Background(), c, domain.DirectMessageIn{RecipientID: "bob", Content: "hi"})

	events := drain(c)
	require.Equal(t, 1, countAcks(events))
	assert.Equal(t, domain.ErrCodeUnauthorized, events[0]["code"])
	assert.Equal(t, 0, f.messages.createCount())
}

func TestPersistFailureStaysRetryable(t *testing.T) {
	f := newFixture(t, openPolicies())
	ctx := context.Background()
	sender := f.connect("alice", "alice-1")

	base := time.Now()
	f.svc.now = func() time.Time { return base }
	in := domain.DirectMessageIn{RecipientID: "bob", Content: "hello"}

	f.messages.failNext = true
	f.svc.HandleDirectMessage(ctx, sender, in)
	ack := nextEvent(t, sender)
	assert.Equal(t, domain.ErrCodePersistFailed, ack["code"])

	// The same payload retried must create, not replay a phantom record.
	f.svc.HandleDirectMessage(ctx, sender, in)
	ack = nextEvent(t, sender)
	assert.Equal(t, true, ack["success"])
	assert.NotEqual(t, true, ack["duplicate"])
	assert.Equal(t, 1, f.messages.createCount())
}

func TestRoomMessageFanout(t *testing.T) {
	f := newFixture(t, openPolicies())
	ctx := context.Background()

	sender := f.connect("alice", "alice-1")
	member := f.connect("bob", "bob-1")

	require.NoError(t, f.svc.HandleJoinRoom(ctx, sender, "lounge"))
	require.NoError(t, f.svc.HandleJoinRoom(ctx, member, "lounge"))
	drain(sender)
	drain(member)

	require.NoError(t, f.svc.HandleRoomMessage(ctx, sender, domain.RoomMessageIn{Room: "lounge", Content: "hello room"}))

	ack := nextEvent(t, sender)
	assert.Equal(t, domain.MsgTypeMessageAck, ack["type"])
	assert.Equal(t, true, ack["success"])

	events := drain(member)
	require.Len(t, events, 1)
	assert.Equal(t, domain.MsgTypeRoomMessage, events[0]["type"])
	assert.Equal(t, "hello room", events[0]["content"])
	assert.Equal(t, "lounge", events[0]["room"])

	// The sender's own connection is excluded from the fan-out.
	assert.Empty(t, drain(sender))
}

func TestRoomMessageToEmptyRoomPersistsWithoutFanout(t *testing.T) {
	f := newFixture(t, openPolicies())
	ctx := context.Background()

	sender := f.connect("alice", "alice-1")

	require.NoError(t, f.svc.HandleRoomMessage(ctx, sender, domain.RoomMessageIn{Room: "ghost-town", Content: "anyone here?"}))

	ack := nextEvent(t, sender)
	assert.Equal(t, true, ack["success"])
	assert.Equal(t, 1, f.messages.createCount(), "record persists even with zero members")
	assert.Empty(t, drain(sender))
}

func TestTypingForwardedAndSilentlyDroppedOverLimit(t *testing.T) {
	policies := map[string]ratelimit.Policy{
		domain.MsgTypeTyping: {Max: 1, Window: time.Minute},
	}
	f := newFixture(t, policies)
	ctx := context.Background()

	sender := f.connect("alice", "alice-1")
	recipient := f.connect("bob", "bob-1")

	require.NoError(t, f.svc.HandleTyping(ctx, sender, domain.TypingIn{RecipientID: "bob", IsTyping: true}))
	require.NoError(t, f.svc.HandleTyping(ctx, sender, domain.TypingIn{RecipientID: "bob", IsTyping: true}))

	events := drain(recipient)
	require.Len(t, events, 1, "over-limit typing must be dropped, not erred")
	assert.Equal(t, domain.MsgTypeTyping, events[0]["type"])
	assert.Equal(t, "alice", events[0]["from_id"])

	assert.Empty(t, drain(sender), "typing produces no acks and no errors")
}

func TestTypingToRoomRequiresMembership(t *testing.T) {
	f := newFixture(t, openPolicies())
	ctx := context.Background()

	sender := f.connect("alice", "alice-1")
	member := f.connect("bob", "bob-1")
	require.NoError(t, f.svc.HandleJoinRoom(ctx, member, "lounge"))
	drain(member)

	// Not in the room: dropped.
	require.NoError(t, f.svc.HandleTyping(ctx, sender, domain.TypingIn{Room: "lounge", IsTyping: true}))
	assert.Empty(t, drain(member))

	require.NoError(t, f.svc.HandleJoinRoom(ctx, sender, "lounge"))
	drain(sender)
	drain(member)

	require.NoError(t, f.svc.HandleTyping(ctx, sender, domain.TypingIn{Room: "lounge", IsTyping: true}))
	events := drain(member)
	require.Len(t, events, 1)
	assert.Equal(t, domain.MsgTypeTyping, events[0]["type"])
}

func TestDisconnectPresenceTransitions(t *testing.T) {
	f := newFixture(t, openPolicies())
	ctx := context.Background()

	phone := f.connect("alice", "alice-phone")
	laptop := f.connect("alice", "alice-laptop")
	observer := f.connect("bob", "bob-1")
	drain(observer)

	require.NoError(t, f.svc.HandleDisconnect(ctx, phone))
	assert.True(t, f.hub.IsOnline("alice"), "one remaining device keeps the identity online")
	assert.Empty(t, drain(observer), "no presence broadcast while still online")

	require.NoError(t, f.svc.HandleDisconnect(ctx, laptop))
	assert.False(t, f.hub.IsOnline("alice"))

	events := drain(observer)
	require.Len(t, events, 1, "offline presence broadcast exactly once")
	assert.Equal(t, domain.MsgTypePresence, events[0]["type"])
	assert.Equal(t, false, events[0]["online"])
}

func TestDirectMessageTriggersNotification(t *testing.T) {
	f := newFixture(t, openPolicies())
	ctx := context.Background()

	sender := f.connect("alice", "alice-1")
	recipient := f.connect("bob", "bob-1")

	require.NoError(t, f.svc.HandleDirectMessage(ctx, sender, domain.DirectMessageIn{RecipientID: "bob", Content: "hi"}))

	require.Eventually(t, func() bool {
		return f.notifs.count() == 1
	}, time.Second, 10*time.Millisecond, "notification record persisted in the background")

	f.notifs.mu.Lock()
	record := f.notifs.created[0]
	f.notifs.mu.Unlock()
	assert.Equal(t, "bob", record.RecipientID)
	assert.Equal(t, "alice", record.SenderID)
	assert.Equal(t, 1, record.Count, "batching is pinned off")
	assert.Equal(t, domain.NotifKindDirectMessage, record.Kind)

	require.Eventually(t, func() bool {
		for _, e := range drain(recipient) {
			if e["type"] == domain.MsgTypeNotification {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond, "notification emitted to live connections")

	f.push.mu.Lock()
	pushCalls := f.push.calls
	f.push.mu.Unlock()
	assert.Equal(t, 1, pushCalls, "external push fired once")
}

func TestJoinRoomRateLimited(t *testing.T) {
	policies := map[string]ratelimit.Policy{
		domain.MsgTypeJoinRoom: {Max: 1, Window: time.Minute},
	}
	f := newFixture(t, policies)
	ctx := context.Background()

	c := f.connect("alice", "alice-1")

	require.NoError(t, f.svc.HandleJoinRoom(ctx, c, "room-1"))
	evt := nextEvent(t, c)
	assert.Equal(t, domain.MsgTypeRoomJoined, evt["type"])

	require.NoError(t, f.svc.HandleJoinRoom(ctx, c, "room-2"))
	evt = nextEvent(t, c)
	assert.Equal(t, domain.MsgTypeError, evt["type"])
	assert.Equal(t, domain.ErrCodeRateLimited, evt["code"])
	assert.Equal(t, 0, f.hub.RoomCount("room-2"))
}
