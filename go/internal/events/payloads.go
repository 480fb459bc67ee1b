package events

import (
	"encoding/json"
	"time"

	"github.com/mcdev12/partyhub/go/internal/protocol"
)

// RoomEvent is the JetStream wire format for session events. It wraps a
// client-facing envelope so gateway instances can rebroadcast it verbatim.
type RoomEvent struct {
	EventID   string            `json:"event_id"`
	RoomID    string            `json:"room_id"`
	Timestamp time.Time         `json:"timestamp"`
	Envelope  protocol.Envelope `json:"envelope"`
}

// DomainEvent is the JetStream wire format for session lifecycle events.
// Unlike RoomEvent these are not rebroadcast to clients; they feed whatever
// listens on the domain subjects (analytics, moderation, room reaping).
type DomainEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	RoomID    string          `json:"room_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// SessionStartedPayload is published when a host starts a game.
type SessionStartedPayload struct {
	RoomID    string    `json:"room_id"`
	GameType  string    `json:"game_type"`
	MaxRounds int       `json:"max_rounds"`
	StartedAt time.Time `json:"started_at"`
}

// SessionEndedPayload is published when a session reaches its end state.
type SessionEndedPayload struct {
	RoomID  string          `json:"room_id"`
	EndedAt time.Time       `json:"ended_at"`
	Winners json.RawMessage `json:"winners,omitempty"`
}

// PlayerKickedPayload is published when the host removes a player.
type PlayerKickedPayload struct {
	RoomID   string    `json:"room_id"`
	PlayerID string    `json:"player_id"`
	KickedAt time.Time `json:"kicked_at"`
}
