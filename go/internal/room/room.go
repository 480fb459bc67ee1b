package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/partyhub/go/internal/content"
	"github.com/mcdev12/partyhub/go/internal/events"
	"github.com/mcdev12/partyhub/go/internal/game"
	"github.com/mcdev12/partyhub/go/internal/protocol"
)

// Broadcaster delivers envelopes to the connections of a room. Implemented
// by the gateway's connection manager.
type Broadcaster interface {
	BroadcastToRoom(roomID string, env protocol.Envelope)
	SendToConnection(roomID, connID string, env protocol.Envelope)
}

// ContentStore is the persistence surface behind the content-management
// commands. Implemented by content.Repository.
type ContentStore interface {
	CreateQuestionSet(ctx context.Context, name string) (*content.QuestionSet, error)
	AddQuestion(ctx context.Context, setID uuid.UUID, text, answer string) (*content.Question, error)
	DeleteQuestionSet(ctx context.Context, id uuid.UUID) error
	CreateItemSet(ctx context.Context, name string) (*content.ItemSet, error)
	AddItem(ctx context.Context, setID uuid.UUID, label string) (*content.Item, error)
	DeleteItemSet(ctx context.Context, id uuid.UUID) error
	ListChallenges(ctx context.Context) ([]content.GuessingChallenge, error)
	RevealChallenge(ctx context.Context, id uuid.UUID) error
	CheckAutoReveal(ctx context.Context, now time.Time) (int, error)
}

// EventSink receives session lifecycle events for publication beyond the
// room's own connections. Implemented by events.Publisher.
type EventSink interface {
	SessionStarted(ctx context.Context, p events.SessionStartedPayload) error
	SessionEnded(ctx context.Context, p events.SessionEndedPayload) error
	PlayerKicked(ctx context.Context, p events.PlayerKickedPayload) error
}

// Room is the authoritative state of one game session. Every accepted
// mutation bumps the version and broadcasts exactly one snapshot; clients
// rely on that version for stale-write rejection.
type Room struct {
	id          string
	clock       clockwork.Clock
	broadcaster Broadcaster
	store       ContentStore
	sink        EventSink

	mu        sync.Mutex
	version   int64
	state     game.SessionState
	round     int
	maxRounds int
	gameType  string
	payload   map[string]json.RawMessage
	players   []game.Player
	prePause  game.SessionState
}

// NewRoom creates a room in the lobby state. store may be nil; the
// content-management commands then fail with an explanatory ack. sink may be
// nil; lifecycle events are then not published.
func NewRoom(id string, clock clockwork.Clock, broadcaster Broadcaster, store ContentStore, sink EventSink) *Room {
	return &Room{
		id:          id,
		clock:       clock,
		broadcaster: broadcaster,
		store:       store,
		sink:        sink,
		state:       game.SessionLobby,
		payload:     make(map[string]json.RawMessage),
	}
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Join adds a player (or reconnects a known one) and pushes both the early
// join signal and the full roster to every client.
func (r *Room) Join(p game.Player) {
	r.mu.Lock()
	known := false
	for i := range r.players {
		if r.players[i].ID == p.ID {
			r.players[i].Status = game.PlayerConnected
			known = true
			break
		}
	}
	if !known {
		p.Status = game.PlayerConnected
		r.players = append(r.players, p)
	}
	roster := r.rosterLocked()
	r.mu.Unlock()

	if !known {
		r.broadcast(protocol.EventPlayerJoined, protocol.PlayerJoinedPayload{Player: &p, PlayerID: p.ID})
	}
	r.broadcast(protocol.EventRoomUpdate, protocol.RoomUpdatePayload{Players: roster})
}

// Leave marks a player disconnected and pushes the roster.
func (r *Room) Leave(playerID string) {
	r.mu.Lock()
	for i := range r.players {
		if r.players[i].ID == playerID {
			r.players[i].Status = game.PlayerDisconnected
			break
		}
	}
	roster := r.rosterLocked()
	r.mu.Unlock()

	r.broadcast(protocol.EventRoomUpdate, protocol.RoomUpdatePayload{Players: roster})
}

// SyncConnection sends the current snapshot and roster to one connection,
// used right after a websocket is established (including reconnects; the
// snapshot carries the current version, so stale replays stay rejectable).
func (r *Room) SyncConnection(connID string) {
	r.mu.Lock()
	snap := r.snapshotLocked()
	roster := r.rosterLocked()
	r.mu.Unlock()

	if env, err := protocol.NewEnvelope(protocol.EventGameStateUpdate, snap); err == nil {
		r.broadcaster.SendToConnection(r.id, connID, env)
	}
	if env, err := protocol.NewEnvelope(protocol.EventRoomUpdate, protocol.RoomUpdatePayload{Players: roster}); err == nil {
		r.broadcaster.SendToConnection(r.id, connID, env)
	}
}

type startGameArgs struct {
	GameType string `json:"game_type"`
	Settings struct {
		MaxRounds int `json:"max_rounds"`
	} `json:"settings"`
}

type kickPlayerArgs struct {
	PlayerID string `json:"player_id"`
}

type questionSetArgs struct {
	Name string `json:"name"`
}

type addQuestionArgs struct {
	SetID  uuid.UUID `json:"set_id"`
	Text   string    `json:"text"`
	Answer string    `json:"answer"`
}

type idArgs struct {
	ID uuid.UUID `json:"id"`
}

type addItemArgs struct {
	SetID uuid.UUID `json:"set_id"`
	Label string    `json:"label"`
}

// HandleCommand applies one client command and acknowledges it to the
// sending connection. state_received is answered with state_ack;
// pause/resume are fire-and-forget and produce no ack at all.
func (r *Room) HandleCommand(ctx context.Context, connID string, cmd protocol.Command) {
	switch cmd.Cmd {
	case protocol.CmdStateReceived:
		var echo protocol.StateAckPayload
		if err := json.Unmarshal(cmd.Args, &echo); err != nil {
			log.Warn().Err(err).Str("room_id", r.id).Msg("malformed state echo")
			return
		}
		if env, err := protocol.NewEnvelope(protocol.EventStateAck, echo); err == nil {
			r.broadcaster.SendToConnection(r.id, connID, env)
		}

	case protocol.CmdPauseGame:
		r.pause()

	case protocol.CmdResumeGame:
		r.resume()

	default:
		ack := r.applyCommand(ctx, cmd)
		env, err := protocol.NewEnvelope(protocol.EventCommandAck, ack)
		if err != nil {
			log.Error().Err(err).Str("command", string(cmd.Cmd)).Msg("failed to build ack")
			return
		}
		r.broadcaster.SendToConnection(r.id, connID, env)
	}
}

func (r *Room) applyCommand(ctx context.Context, cmd protocol.Command) protocol.Ack {
	switch cmd.Cmd {
	case protocol.CmdStartGame:
		var args startGameArgs
		if err := json.Unmarshal(cmd.Args, &args); err != nil {
			return fail(cmd.ID, fmt.Errorf("malformed args: %w", err))
		}
		if game.NormalizeGameType(args.GameType) == game.GameUnknown {
			return fail(cmd.ID, fmt.Errorf("unknown game type %q", args.GameType))
		}
		r.mu.Lock()
		r.state = game.SessionStarting
		r.gameType = args.GameType
		r.round = 1
		if args.Settings.MaxRounds > 0 {
			r.maxRounds = args.Settings.MaxRounds
		}
		r.payload = make(map[string]json.RawMessage)
		maxRounds := r.maxRounds
		r.mu.Unlock()
		r.broadcastState()
		r.emit(func(sink EventSink) error {
			return sink.SessionStarted(ctx, events.SessionStartedPayload{
				RoomID:    r.id,
				GameType:  args.GameType,
				MaxRounds: maxRounds,
				StartedAt: r.clock.Now(),
			})
		})
		return ok(cmd.ID, nil)

	case protocol.CmdEndGame:
		r.mu.Lock()
		r.state = game.SessionGameEnd
		scoreboard := game.BuildScoreboard(r.players)
		r.mu.Unlock()
		r.broadcastState()
		r.emit(func(sink EventSink) error {
			winners, err := json.Marshal(scoreboard)
			if err != nil {
				return fmt.Errorf("marshal final scoreboard: %w", err)
			}
			return sink.SessionEnded(ctx, events.SessionEndedPayload{
				RoomID:  r.id,
				EndedAt: r.clock.Now(),
				Winners: winners,
			})
		})
		return ok(cmd.ID, nil)

	case protocol.CmdKickPlayer:
		var args kickPlayerArgs
		if err := json.Unmarshal(cmd.Args, &args); err != nil {
			return fail(cmd.ID, fmt.Errorf("malformed args: %w", err))
		}
		r.mu.Lock()
		found := false
		kept := r.players[:0]
		for _, p := range r.players {
			if p.ID == args.PlayerID {
				found = true
				continue
			}
			kept = append(kept, p)
		}
		r.players = kept
		roster := r.rosterLocked()
		r.mu.Unlock()
		if !found {
			return fail(cmd.ID, fmt.Errorf("player %s not in room", args.PlayerID))
		}
		r.broadcast(protocol.EventRoomUpdate, protocol.RoomUpdatePayload{Players: roster})
		r.emit(func(sink EventSink) error {
			return sink.PlayerKicked(ctx, events.PlayerKickedPayload{
				RoomID:   r.id,
				PlayerID: args.PlayerID,
				KickedAt: r.clock.Now(),
			})
		})
		return ok(cmd.ID, nil)

	case protocol.CmdCreateQuestionSet:
		var args questionSetArgs
		if err := json.Unmarshal(cmd.Args, &args); err != nil {
			return fail(cmd.ID, fmt.Errorf("malformed args: %w", err))
		}
		return r.withStore(cmd.ID, func(store ContentStore) (interface{}, error) {
			return store.CreateQuestionSet(ctx, args.Name)
		})

	case protocol.CmdAddQuestionToSet:
		var args addQuestionArgs
		if err := json.Unmarshal(cmd.Args, &args); err != nil {
			return fail(cmd.ID, fmt.Errorf("malformed args: %w", err))
		}
		return r.withStore(cmd.ID, func(store ContentStore) (interface{}, error) {
			return store.AddQuestion(ctx, args.SetID, args.Text, args.Answer)
		})

	case protocol.CmdDeleteQuestionSet:
		var args idArgs
		if err := json.Unmarshal(cmd.Args, &args); err != nil {
			return fail(cmd.ID, fmt.Errorf("malformed args: %w", err))
		}
		return r.withStore(cmd.ID, func(store ContentStore) (interface{}, error) {
			return nil, store.DeleteQuestionSet(ctx, args.ID)
		})

	case protocol.CmdCreateItemSet:
		var args questionSetArgs
		if err := json.Unmarshal(cmd.Args, &args); err != nil {
			return fail(cmd.ID, fmt.Errorf("malformed args: %w", err))
		}
		return r.withStore(cmd.ID, func(store ContentStore) (interface{}, error) {
			return store.CreateItemSet(ctx, args.Name)
		})

	case protocol.CmdAddItemToSet:
		var args addItemArgs
		if err := json.Unmarshal(cmd.Args, &args); err != nil {
			return fail(cmd.ID, fmt.Errorf("malformed args: %w", err))
		}
		return r.withStore(cmd.ID, func(store ContentStore) (interface{}, error) {
			return store.AddItem(ctx, args.SetID, args.Label)
		})

	case protocol.CmdDeleteItemSet:
		var args idArgs
		if err := json.Unmarshal(cmd.Args, &args); err != nil {
			return fail(cmd.ID, fmt.Errorf("malformed args: %w", err))
		}
		return r.withStore(cmd.ID, func(store ContentStore) (interface{}, error) {
			return nil, store.DeleteItemSet(ctx, args.ID)
		})

	case protocol.CmdGetChallenges:
		return r.withStore(cmd.ID, func(store ContentStore) (interface{}, error) {
			return store.ListChallenges(ctx)
		})

	case protocol.CmdRevealChallenge:
		var args idArgs
		if err := json.Unmarshal(cmd.Args, &args); err != nil {
			return fail(cmd.ID, fmt.Errorf("malformed args: %w", err))
		}
		return r.withStore(cmd.ID, func(store ContentStore) (interface{}, error) {
			return nil, store.RevealChallenge(ctx, args.ID)
		})

	case protocol.CmdCheckAutoReveal:
		return r.withStore(cmd.ID, func(store ContentStore) (interface{}, error) {
			count, err := store.CheckAutoReveal(ctx, r.clock.Now())
			if err != nil {
				return nil, err
			}
			return map[string]int{"revealed_count": count}, nil
		})

	default:
		return fail(cmd.ID, fmt.Errorf("unknown command %q", cmd.Cmd))
	}
}

// SetPayloadField updates one per-game payload field and broadcasts. Used by
// the game drivers (calling bingo items, advancing questions).
func (r *Room) SetPayloadField(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal payload field %s: %w", key, err)
	}
	r.mu.Lock()
	r.payload[key] = data
	if r.state == game.SessionStarting {
		r.state = game.SessionPlaying
	}
	r.mu.Unlock()
	r.broadcastState()
	return nil
}

func (r *Room) pause() {
	r.mu.Lock()
	if r.state == game.SessionPaused || !r.state.IsActive() {
		r.mu.Unlock()
		return
	}
	r.prePause = r.state
	r.state = game.SessionPaused
	r.mu.Unlock()
	r.broadcastState()
}

func (r *Room) resume() {
	r.mu.Lock()
	if r.state != game.SessionPaused {
		r.mu.Unlock()
		return
	}
	if r.prePause != "" {
		r.state = r.prePause
	} else {
		r.state = game.SessionPlaying
	}
	r.mu.Unlock()
	r.broadcastState()
}

// broadcastState bumps the version and fans one snapshot out to the room.
func (r *Room) broadcastState() {
	r.mu.Lock()
	r.version++
	snap := r.snapshotLocked()
	r.mu.Unlock()

	env, err := protocol.NewEnvelope(protocol.EventGameStateUpdate, snap)
	if err != nil {
		log.Error().Err(err).Str("room_id", r.id).Msg("failed to build snapshot envelope")
		return
	}
	r.broadcaster.BroadcastToRoom(r.id, env)
	log.Debug().Str("room_id", r.id).Int64("version", snap.Version).Str("state", string(snap.SessionState)).Msg("snapshot broadcast")
}

func (r *Room) snapshotLocked() game.StateSnapshot {
	payload := make(map[string]json.RawMessage, len(r.payload))
	for k, v := range r.payload {
		payload[k] = v
	}
	return game.StateSnapshot{
		Version:      r.version,
		Timestamp:    r.clock.Now(),
		SessionState: r.state,
		Round:        r.round,
		MaxRounds:    r.maxRounds,
		GameType:     r.gameType,
		Payload:      payload,
	}
}

func (r *Room) rosterLocked() []game.Player {
	roster := make([]game.Player, len(r.players))
	copy(roster, r.players)
	return roster
}

func (r *Room) broadcast(t protocol.EventType, payload interface{}) {
	env, err := protocol.NewEnvelope(t, payload)
	if err != nil {
		log.Error().Err(err).Str("event", string(t)).Msg("failed to build envelope")
		return
	}
	r.broadcaster.BroadcastToRoom(r.id, env)
}

// emit delivers one lifecycle event to the sink, if any. Publish failures
// are logged; the command already succeeded for the room's own clients.
func (r *Room) emit(fn func(EventSink) error) {
	if r.sink == nil {
		return
	}
	if err := fn(r.sink); err != nil {
		log.Error().Err(err).Str("room_id", r.id).Msg("failed to publish session event")
	}
}

func (r *Room) withStore(cmdID string, fn func(ContentStore) (interface{}, error)) protocol.Ack {
	if r.store == nil {
		return fail(cmdID, fmt.Errorf("content store not configured"))
	}
	result, err := fn(r.store)
	if err != nil {
		return fail(cmdID, err)
	}
	return ok(cmdID, result)
}

func ok(id string, result interface{}) protocol.Ack {
	ack := protocol.Ack{ID: id, Success: true}
	if result != nil {
		if data, err := json.Marshal(result); err == nil {
			ack.Data = data
		}
	}
	return ack
}

func fail(id string, err error) protocol.Ack {
	return protocol.Ack{ID: id, Success: false, Error: err.Error()}
}
