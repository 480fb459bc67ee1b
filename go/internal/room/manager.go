package room

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/partyhub/go/internal/game"
	"github.com/mcdev12/partyhub/go/internal/protocol"
)

// Manager tracks the live rooms of this gateway instance.
type Manager struct {
	clock       clockwork.Clock
	broadcaster Broadcaster
	store       ContentStore
	sink        EventSink

	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewManager creates an empty room manager.
func NewManager(clock clockwork.Clock, broadcaster Broadcaster, store ContentStore, sink EventSink) *Manager {
	return &Manager{
		clock:       clock,
		broadcaster: broadcaster,
		store:       store,
		sink:        sink,
		rooms:       make(map[string]*Room),
	}
}

// GetOrCreate returns the room for id, creating it on first use.
func (m *Manager) GetOrCreate(id string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[id]; ok {
		return r
	}
	r := NewRoom(id, m.clock, m.broadcaster, m.store, m.sink)
	m.rooms[id] = r
	return r
}

// Get returns the room for id, or nil.
func (m *Manager) Get(id string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[id]
}

// Remove drops a room (e.g. once every connection is gone).
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, id)
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// HandleCommand routes a client command to its room.
func (m *Manager) HandleCommand(ctx context.Context, roomID, connID string, cmd protocol.Command) {
	m.GetOrCreate(roomID).HandleCommand(ctx, connID, cmd)
}

// PlayerJoined adds a player to the room's roster.
func (m *Manager) PlayerJoined(roomID string, p game.Player) {
	m.GetOrCreate(roomID).Join(p)
}

// PlayerLeft marks a player disconnected. A room that never existed has no
// roster to update.
func (m *Manager) PlayerLeft(roomID, playerID string) {
	if r := m.Get(roomID); r != nil {
		r.Leave(playerID)
	}
}

// SyncConnection replays the current state to a single connection.
func (m *Manager) SyncConnection(roomID, connID string) {
	m.GetOrCreate(roomID).SyncConnection(connID)
}
