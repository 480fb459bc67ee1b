package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/partyhub/go/internal/game"
)

// EventType identifies an inbound (server -> client) event
type EventType string

const (
	EventGameStateUpdate  EventType = "game_state_update"
	EventStateAck         EventType = "state_ack"
	EventRoomUpdate       EventType = "room_update"
	EventPlayerJoined     EventType = "player_joined_animation"
	EventDisplaySyncState EventType = "display_sync_state"
	EventCommandAck       EventType = "command_ack"
)

// Envelope is the wire frame for every message in either direction.
// Payloads are decoded into fixed schemas at the transport boundary;
// nothing downstream ever sees raw JSON it did not ask for.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// StateAckPayload acknowledges a state broadcast and carries the broadcast's
// version and timestamp so the client can measure the full round trip.
type StateAckPayload struct {
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomUpdatePayload is a full roster replacement.
type RoomUpdatePayload struct {
	Players []game.Player `json:"players"`
}

// PlayerJoinedPayload is the out-of-band early join signal sent before the
// next room_update lands.
type PlayerJoinedPayload struct {
	Player   *game.Player `json:"player,omitempty"`
	PlayerID string       `json:"player_id"`
}

// CommandName identifies an outbound (client -> server) command
type CommandName string

const (
	CmdStateReceived     CommandName = "state_received"
	CmdStartGame         CommandName = "start_game"
	CmdEndGame           CommandName = "end_game"
	CmdPauseGame         CommandName = "pause_game"
	CmdResumeGame        CommandName = "resume_game"
	CmdKickPlayer        CommandName = "kick_player"
	CmdCreateQuestionSet CommandName = "create_question_set"
	CmdAddQuestionToSet  CommandName = "add_question_to_set"
	CmdDeleteQuestionSet CommandName = "delete_question_set"
	CmdCreateItemSet     CommandName = "create_item_set"
	CmdAddItemToSet      CommandName = "add_item_to_set"
	CmdDeleteItemSet     CommandName = "delete_item_set"
	CmdGetChallenges     CommandName = "get_guessing_challenges"
	CmdRevealChallenge   CommandName = "reveal_guessing_challenge"
	CmdCheckAutoReveal   CommandName = "check_auto_reveal"
)

// Command is the payload of an outbound command envelope. ID correlates the
// eventual command_ack back to the caller.
type Command struct {
	ID   string          `json:"id"`
	Cmd  CommandName     `json:"cmd"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Ack is the server's asynchronous response to a command.
type Ack struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ParseEventPayload decodes an envelope's data into the payload struct for
// its event type. An unknown event type returns (nil, nil); the caller logs
// and drops it rather than treating it as an error.
func ParseEventPayload(env Envelope) (interface{}, error) {
	switch env.Type {
	case EventGameStateUpdate, EventDisplaySyncState:
		var payload game.StateSnapshot
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return payload, nil

	case EventStateAck:
		var payload StateAckPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return payload, nil

	case EventRoomUpdate:
		var payload RoomUpdatePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return payload, nil

	case EventPlayerJoined:
		var payload PlayerJoinedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return payload, nil

	case EventCommandAck:
		var payload Ack
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return payload, nil

	default:
		return nil, nil // Unknown event type
	}
}

// NewEnvelope marshals a payload into an envelope of the given type.
func NewEnvelope(t EventType, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Envelope{Type: t, Data: data}, nil
}

// CommandEnvelope wraps a command for the wire. Outbound commands reuse the
// envelope frame with the command name as the type.
func CommandEnvelope(cmd Command) (Envelope, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal command %s: %w", cmd.Cmd, err)
	}
	return Envelope{Type: EventType(cmd.Cmd), Data: data}, nil
}
