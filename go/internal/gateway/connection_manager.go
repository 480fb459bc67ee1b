package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/partyhub/go/internal/game"
	"github.com/mcdev12/partyhub/go/internal/protocol"
)

// ConnectionRole distinguishes the differently-privileged client surfaces.
type ConnectionRole string

const (
	RoleDisplay ConnectionRole = "display"
	RoleHost    ConnectionRole = "host"
	RolePlayer  ConnectionRole = "player"
)

// SessionHub is the authority behind the gateway: it applies commands and
// tracks the roster. Implemented by room.Manager.
type SessionHub interface {
	HandleCommand(ctx context.Context, roomID, connID string, cmd protocol.Command)
	PlayerJoined(roomID string, p game.Player)
	PlayerLeft(roomID, playerID string)
	SyncConnection(roomID, connID string)
}

// ConnectionManager manages websocket connections for game sessions.
type ConnectionManager struct {
	// Connection pools organized by room ID
	roomConnections map[string]map[*Connection]bool
	byID            map[string]*Connection
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	hub      SessionHub

	broadcastCh chan BroadcastMessage
}

// Connection represents one websocket connection to a client surface.
type Connection struct {
	ID       string
	RoomID   string
	Role     ConnectionRole
	PlayerID string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for websocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is one envelope queued for fan-out.
type BroadcastMessage struct {
	RoomID string
	Env    protocol.Envelope
	ConnID string // Optional: if set, only send to this connection
}

// DefaultConnectionConfig returns default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  16 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a websocket connection manager. The hub is
// attached separately because the room manager needs the connection manager
// as its broadcaster first.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		byID:            make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// SetHub attaches the command/roster authority.
func (cm *ConnectionManager) SetHub(hub SessionHub) {
	cm.hub = hub
}

// Start begins processing broadcast messages.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a websocket and registers it
// with the room's pool. Player connections join the room's roster.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, roomID string, role ConnectionRole, player *game.Player) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		RoomID:      roomID,
		Role:        role,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}
	if player != nil {
		connection.PlayerID = player.ID
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	if cm.hub != nil {
		if role == RolePlayer && player != nil {
			cm.hub.PlayerJoined(roomID, *player)
		}
		// Bring the new connection up to the current version immediately
		cm.hub.SyncConnection(roomID, connection.ID)
	}

	log.Info().
		Str("connection_id", connection.ID).
		Str("room_id", roomID).
		Str("role", string(role)).
		Msg("websocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[conn.RoomID] == nil {
		cm.roomConnections[conn.RoomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.RoomID][conn] = true
	cm.byID[conn.ID] = conn

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", conn.RoomID).
		Int("total_connections", len(cm.roomConnections[conn.RoomID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	var gone bool
	if connections, exists := cm.roomConnections[conn.RoomID]; exists {
		if _, exists := connections[conn]; exists {
			gone = true
			delete(connections, conn)
			delete(cm.byID, conn.ID)
			close(conn.Send)

			if len(connections) == 0 {
				delete(cm.roomConnections, conn.RoomID)
			}
		}
	}
	cm.mu.Unlock()

	if !gone {
		return
	}
	if cm.hub != nil && conn.Role == RolePlayer && conn.PlayerID != "" {
		cm.hub.PlayerLeft(conn.RoomID, conn.PlayerID)
	}
	log.Info().
		Str("connection_id", conn.ID).
		Str("room_id", conn.RoomID).
		Str("role", string(conn.Role)).
		Msg("connection unregistered")
}

// BroadcastToRoom queues an envelope for every connection in a room.
// Implements room.Broadcaster.
func (cm *ConnectionManager) BroadcastToRoom(roomID string, env protocol.Envelope) {
	select {
	case cm.broadcastCh <- BroadcastMessage{RoomID: roomID, Env: env}:
	default:
		log.Warn().Str("room_id", roomID).Msg("broadcast channel full, dropping message")
	}
}

// SendToConnection queues an envelope for a single connection.
// Implements room.Broadcaster.
func (cm *ConnectionManager) SendToConnection(roomID, connID string, env protocol.Envelope) {
	select {
	case cm.broadcastCh <- BroadcastMessage{RoomID: roomID, Env: env, ConnID: connID}:
	default:
		log.Warn().
			Str("room_id", roomID).
			Str("connection_id", connID).
			Msg("broadcast channel full, dropping direct message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	data, err := json.Marshal(message.Env)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal envelope for broadcast")
		return
	}

	// Send channels are only closed under the write lock, so sending while
	// holding the read lock cannot race a pump teardown. The sends never
	// block; a full buffer marks the connection as slow instead.
	cm.mu.RLock()
	var slow []*Connection
	sent := 0
	for conn := range cm.roomConnections[message.RoomID] {
		if message.ConnID != "" && conn.ID != message.ConnID {
			continue
		}
		select {
		case conn.Send <- data:
			sent++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(message.Env.Type)).
		Str("room_id", message.RoomID).
		Int("connections", sent).
		Msg("envelope broadcast")
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalConnections := 0
	roomCounts := make(map[string]int)

	for roomID, connections := range cm.roomConnections {
		count := len(connections)
		totalConnections += count
		roomCounts[roomID] = count
	}

	return map[string]interface{}{
		"total_connections": totalConnections,
		"active_rooms":      len(cm.roomConnections),
		"room_connections":  roomCounts,
	}
}

// writePump handles sending messages to the websocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the websocket connection.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage decodes a client frame. Every client-to-server frame
// is a command envelope; anything else is dropped at this boundary.
func (c *Connection) handleClientMessage(message []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", c.ID).
			Msg("dropping malformed client frame")
		return
	}

	var cmd protocol.Command
	if err := json.Unmarshal(env.Data, &cmd); err != nil || cmd.Cmd == "" {
		log.Warn().
			Str("connection_id", c.ID).
			Str("type", string(env.Type)).
			Msg("dropping client frame without a command")
		return
	}

	if c.Manager.hub == nil {
		return
	}
	c.Manager.hub.HandleCommand(context.Background(), c.RoomID, c.ID, cmd)
}
