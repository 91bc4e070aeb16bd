package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Amatex1/pryde-backend-sub002/internal/hub"
)

// HTTPHandler exposes the read-only presence API.
type HTTPHandler struct {
	hub *hub.Hub
}

func NewHTTPHandler(h *hub.Hub) *HTTPHandler {
	return &HTTPHandler{hub: h}
}

// UserPresenceResponse is the API response for user presence queries.
type UserPresenceResponse struct {
	UserID      string `json:"user_id"`
	Online      bool   `json:"online"`
	Connections int    `json:"connections"`
}

// RoomPresenceResponse is the API response for room presence queries.
type RoomPresenceResponse struct {
	Room    string `json:"room"`
	Members int    `json:"members"`
}

// GetUserPresence handles GET /api/v1/presence/{user_id}
func (h *HTTPHandler) GetUserPresence(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID := vars["user_id"]

	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	response := UserPresenceResponse{
		UserID:      userID,
		Online:      h.hub.IsOnline(userID),
		Connections: h.hub.ConnectionCount(userID),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// GetRoomPresence handles GET /api/v1/rooms/{room}/presence
func (h *HTTPHandler) GetRoomPresence(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	room := vars["room"]

	if room == "" {
		http.Error(w, "room is required", http.StatusBadRequest)
		return
	}

	response := RoomPresenceResponse{
		Room:    room,
		Members: h.hub.RoomCount(room),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/presence/{user_id}", h.GetUserPresence).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/rooms/{room}/presence", h.GetRoomPresence).Methods(http.MethodGet)
}
