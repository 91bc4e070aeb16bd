// Package hub is the connection registry: it owns the identity->connections
// and room->connections maps, drives presence transitions, and fans events
// out to rooms and users. Maps are sharded by key hash so concurrent
// handlers contend per key, not on one global lock.
package hub

import (
	"encoding/json"
	"hash/fnv"
	"sync"

	"github.com/Amatex1/pryde-backend-sub002/internal/domain"
	"github.com/Amatex1/pryde-backend-sub002/pkg/log"
)

const shardCount = 32

type identityShard struct {
	mu    sync.RWMutex
	users map[string]map[*Client]struct{}
}

type roomShard struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

type Hub struct {
	identities [shardCount]identityShard
	rooms      [shardCount]roomShard

	// all registered connections, authenticated or not, for broadcasts
	connMu sync.RWMutex
	conns  map[*Client]struct{}
}

func NewHub() *Hub {
	h := &Hub{conns: make(map[*Client]struct{})}
	for i := range h.identities {
		h.identities[i].users = make(map[string]map[*Client]struct{})
	}
	for i := range h.rooms {
		h.rooms[i].rooms = make(map[string]map[*Client]struct{})
	}
	return h
}

func shardIndex(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % shardCount
}

func (h *Hub) identityShard(userID string) *identityShard {
	return &h.identities[shardIndex(userID)]
}

func (h *Hub) roomShard(room string) *roomShard {
	return &h.rooms[shardIndex(room)]
}

// Register adds a freshly upgraded connection. Identity binding happens
// separately once the client authenticates.
func (h *Hub) Register(client *Client) {
	h.connMu.Lock()
	h.conns[client] = struct{}{}
	h.connMu.Unlock()
	log.L().Debug().Str(log.FieldConnID, client.ID).Msg("client registered")
}

// Unregister removes the connection from every map and closes its send
// channel. It reports whether the owning identity went offline, i.e. this
// was its last connection.
func (h *Hub) Unregister(client *Client) (wentOffline bool) {
	h.connMu.Lock()
	if _, ok := h.conns[client]; !ok {
		h.connMu.Unlock()
		return false
	}
	delete(h.conns, client)
	h.connMu.Unlock()

	for _, room := range client.Session.RoomList() {
		h.LeaveRoom(room, client)
	}

	if userID := client.Session.GetUserID(); userID != "" {
		wentOffline = h.Unbind(userID, client)
	}

	client.closeSend()
	log.L().Debug().Str(log.FieldConnID, client.ID).Msg("client unregistered")
	return wentOffline
}

// Bind attaches an authenticated identity to a connection. It reports
// whether the identity just came online, i.e. this is its first connection.
func (h *Hub) Bind(userID string, client *Client) (cameOnline bool) {
	shard := h.identityShard(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	set, ok := shard.users[userID]
	if !ok {
		set = make(map[*Client]struct{})
		shard.users[userID] = set
	}
	set[client] = struct{}{}
	return !ok
}

// Unbind detaches a connection from an identity without unregistering it,
// used on disconnect and when a connection re-authenticates as someone else.
// It reports whether the identity went offline.
func (h *Hub) Unbind(userID string, client *Client) (wentOffline bool) {
	shard := h.identityShard(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	set, ok := shard.users[userID]
	if !ok {
		return false
	}
	delete(set, client)
	if len(set) == 0 {
		delete(shard.users, userID)
		return true
	}
	return false
}

func (h *Hub) IsOnline(userID string) bool {
	shard := h.identityShard(userID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	return len(shard.users[userID]) > 0
}

func (h *Hub) ConnectionCount(userID string) int {
	shard := h.identityShard(userID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	return len(shard.users[userID])
}

func (h *Hub) JoinRoom(room string, client *Client) {
	shard := h.roomShard(room)
	shard.mu.Lock()
	set, ok := shard.rooms[room]
	if !ok {
		set = make(map[*Client]struct{})
		shard.rooms[room] = set
	}
	set[client] = struct{}{}
	shard.mu.Unlock()

	log.L().Info().Str(log.FieldConnID, client.ID).Str(log.FieldRoom, room).Msg("client joined room")
}

func (h *Hub) LeaveRoom(room string, client *Client) {
	shard := h.roomShard(room)
	shard.mu.Lock()
	if set, ok := shard.rooms[room]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(shard.rooms, room)
		}
	}
	shard.mu.Unlock()
}

func (h *Hub) RoomCount(room string) int {
	shard := h.roomShard(room)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	return len(shard.rooms[room])
}

// SendToUser delivers a message to every live connection of the identity and
// returns how many frames were queued. Zero connections is a no-op, not an
// error.
func (h *Hub) SendToUser(userID string, message interface{}) int {
	data, err := json.Marshal(message)
	if err != nil {
		log.L().Error().Err(err).Msg("marshal outbound event")
		return 0
	}

	shard := h.identityShard(userID)
	shard.mu.RLock()
	targets := make([]*Client, 0, len(shard.users[userID]))
	for c := range shard.users[userID] {
		targets = append(targets, c)
	}
	shard.mu.RUnlock()

	return h.deliver(targets, data, nil)
}

// BroadcastToRoom fans a message out to every connection in the room except
// exclude. Returns the number of frames queued.
func (h *Hub) BroadcastToRoom(room string, message interface{}, exclude *Client) int {
	data, err := json.Marshal(message)
	if err != nil {
		log.L().Error().Err(err).Msg("marshal outbound event")
		return 0
	}

	shard := h.roomShard(room)
	shard.mu.RLock()
	targets := make([]*Client, 0, len(shard.rooms[room]))
	for c := range shard.rooms[room] {
		targets = append(targets, c)
	}
	shard.mu.RUnlock()

	return h.deliver(targets, data, exclude)
}

// BroadcastPresence announces an identity's presence change to every
// connected client.
func (h *Hub) BroadcastPresence(userID string, online bool) {
	data, err := json.Marshal(&domain.PresenceMessage{
		Type:   domain.MsgTypePresence,
		UserID: userID,
		Online: online,
	})
	if err != nil {
		return
	}

	h.connMu.RLock()
	targets := make([]*Client, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.connMu.RUnlock()

	h.deliver(targets, data, nil)
}

// deliver queues data on each target, copying the target set first so slow
// consumers never hold a shard lock. Clients with a full send buffer are
// disconnected rather than blocked on.
func (h *Hub) deliver(targets []*Client, data []byte, exclude *Client) int {
	sent := 0
	for _, c := range targets {
		if c == exclude {
			continue
		}
		if c.trySend(data) {
			sent++
		} else {
			log.L().Warn().Str(log.FieldConnID, c.ID).Msg("send buffer full, dropping client")
			go c.Conn.Close()
		}
	}
	return sent
}
