package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/partyhub/go/internal/game"
)

// WebSocketHandler handles websocket upgrade requests for room connections.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new websocket handler.
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleRoomConnection handles websocket connections for a specific room.
// Query parameters: room_id (required), role (display|host|player, default
// player), and for players player_id, name, avatar.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}

	role := ConnectionRole(r.URL.Query().Get("role"))
	switch role {
	case RoleDisplay, RoleHost, RolePlayer:
	case "":
		role = RolePlayer
	default:
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}

	var player *game.Player
	if role == RolePlayer {
		playerID := r.URL.Query().Get("player_id")
		if playerID == "" {
			playerID = uuid.New().String()
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			http.Error(w, "name is required for players", http.StatusBadRequest)
			return
		}
		player = &game.Player{
			ID:     playerID,
			Name:   name,
			Avatar: r.URL.Query().Get("avatar"),
			Status: game.PlayerConnected,
		}
	}

	if err := h.connectionManager.UpgradeConnection(w, r, roomID, role, player); err != nil {
		log.Error().
			Err(err).
			Str("room_id", roomID).
			Str("role", string(role)).
			Msg("failed to upgrade websocket connection")
		// Upgrade already wrote the HTTP error response
		return
	}
}

// HandleConnectionStats returns statistics about active connections.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

// RegisterRoutes registers websocket routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/room", h.HandleRoomConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
