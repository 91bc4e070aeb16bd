package domain

import (
	"sync"
	"time"
)

// Session tracks the per-connection state: the authenticated identity and
// the rooms this connection has joined. A user may hold several sessions at
// once (multi-device); presence is owned by the hub, not the session.
type Session struct {
	ID            string
	UserID        string
	SessionID     string
	DisplayName   string
	Role          string
	Authenticated bool
	Rooms         map[string]struct{}
	CreatedAt     time.Time
	LastActiveAt  time.Time
	mu            sync.RWMutex
}

func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		Rooms:        make(map[string]struct{}),
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

func (s *Session) Authenticate(ident Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UserID = ident.UserID
	s.SessionID = ident.SessionID
	s.DisplayName = ident.DisplayName
	s.Role = ident.Role
	s.Authenticated = true
	s.LastActiveAt = time.Now()
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Authenticated
}

func (s *Session) GetUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.UserID
}

func (s *Session) GetDisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.DisplayName
}

func (s *Session) JoinRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Rooms[room] = struct{}{}
	s.LastActiveAt = time.Now()
}

func (s *Session) LeaveRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Rooms, room)
	s.LastActiveAt = time.Now()
}

func (s *Session) InRoom(room string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.Rooms[room]
	return ok
}

// RoomList returns a snapshot of the joined rooms, for disconnect cleanup.
func (s *Session) RoomList() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]string, 0, len(s.Rooms))
	for r := range s.Rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
