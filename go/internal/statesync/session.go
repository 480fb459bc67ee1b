package statesync

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/partyhub/go/internal/game"
	"github.com/mcdev12/partyhub/go/internal/protocol"
)

// ViewModel is the single derived projection handed to the UI layer per
// render cycle. The UI never reads the raw snapshot directly.
type ViewModel struct {
	ViewVariant        ViewVariant
	EffectiveRound     int
	EffectiveMaxRounds int
	Scoreboard         []game.ScoreboardEntry
	// LatencyMs is nil until a round trip has been measured; zero is a
	// valid measurement and is distinct from absence of data
	LatencyMs    *float64
	NewPlayerIDs map[string]struct{}
}

// SessionConfig holds the tunables for a client session.
type SessionConfig struct {
	Fallback     Fallback
	NewPlayerTTL time.Duration
}

// Session owns the client-side synchronization state for one connection to a
// game session: the snapshot store, the latency tracker, the roster tracker
// and the command dispatcher. All inbound protocol messages flow through
// HandleMessage; the UI pulls a consistent ViewModel whenever it renders.
type Session struct {
	logger     zerolog.Logger
	clock      clockwork.Clock
	store      *SnapshotStore
	preview    *SnapshotStore
	latency    *LatencyTracker
	roster     *RosterTracker
	dispatcher *Dispatcher

	mu       sync.Mutex
	fallback Fallback
	players  []game.Player
	paused   bool
}

// NewSession wires up a session writing outbound envelopes through send.
func NewSession(clock clockwork.Clock, cfg SessionConfig, send SendFunc) *Session {
	s := &Session{
		logger:   log.With().Str("component", "session").Logger(),
		clock:    clock,
		store:    NewSnapshotStore(),
		preview:  NewSnapshotStore(),
		latency:  NewLatencyTracker(clock),
		roster:   NewRosterTracker(clock, cfg.NewPlayerTTL),
		fallback: cfg.Fallback,
	}
	s.dispatcher = NewDispatcher(clock, send)

	// Pause/resume are fire-and-forget: the server sends no ack, so the
	// local flag flip has no revert path.
	s.dispatcher.RegisterOptimistic(protocol.CmdPauseGame, Optimistic{
		Apply: func() { s.setPaused(true) },
	})
	s.dispatcher.RegisterOptimistic(protocol.CmdResumeGame, Optimistic{
		Apply: func() { s.setPaused(false) },
	})

	// Echo every accepted snapshot so the server's state_ack closes the
	// latency measurement loop.
	s.store.Subscribe(func(snap game.StateSnapshot) {
		s.latency.ObserveState(snap.Timestamp)
		err := s.dispatcher.Send(protocol.CmdStateReceived, protocol.StateAckPayload{
			Version:   snap.Version,
			Timestamp: snap.Timestamp,
		}, nil)
		if err != nil {
			s.logger.Debug().Err(err).Int64("version", snap.Version).Msg("state echo not sent")
		}
	})

	return s
}

// HandleMessage routes one inbound envelope to its owning component.
// Unknown event types are logged and dropped; they never reach the store.
func (s *Session) HandleMessage(env protocol.Envelope) error {
	payload, err := protocol.ParseEventPayload(env)
	if err != nil {
		return fmt.Errorf("handle %s: %w", env.Type, err)
	}
	if payload == nil {
		s.logger.Debug().Str("event", string(env.Type)).Msg("dropping unknown event")
		return nil
	}

	switch env.Type {
	case protocol.EventGameStateUpdate:
		snap := payload.(game.StateSnapshot)
		if s.store.Apply(snap) == RejectedStale {
			return nil
		}

	case protocol.EventDisplaySyncState:
		// Host preview surface only; versioned independently.
		s.preview.Apply(payload.(game.StateSnapshot))

	case protocol.EventStateAck:
		s.latency.ObserveAck(payload.(protocol.StateAckPayload).Timestamp)

	case protocol.EventRoomUpdate:
		roster := payload.(protocol.RoomUpdatePayload)
		joined := s.roster.Update(roster.Players)
		s.mu.Lock()
		s.players = roster.Players
		s.mu.Unlock()
		if len(joined) > 0 {
			s.logger.Debug().Strs("player_ids", joined).Msg("players joined")
		}

	case protocol.EventPlayerJoined:
		s.roster.MarkJoined(payload.(protocol.PlayerJoinedPayload).PlayerID)

	case protocol.EventCommandAck:
		s.dispatcher.HandleAck(payload.(protocol.Ack))
	}
	return nil
}

// Dispatcher exposes the command path for callers (host panel actions,
// content management).
func (s *Session) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Preview returns the latest display-sync snapshot for the host preview.
func (s *Session) Preview() (game.StateSnapshot, bool) {
	return s.preview.Current()
}

// Paused reports the optimistic local paused flag.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// ViewModel derives the render-cycle projection. Every field is computed
// from one consistent snapshot; a snapshot applied concurrently is either
// fully visible or not visible at all.
func (s *Session) ViewModel() ViewModel {
	var snapPtr *game.StateSnapshot
	snap, ok := s.store.Current()
	if ok {
		snapPtr = &snap
	}

	s.mu.Lock()
	fb := s.fallback
	players := s.players
	s.mu.Unlock()

	resolved := Resolve(snapPtr, fb)

	payloadKeys := map[string]struct{}{}
	if snapPtr != nil {
		payloadKeys = snapPtr.PayloadKeys()
	}

	var latencyMs *float64
	if mean, known := s.latency.Mean(); known {
		ms := float64(mean.Microseconds()) / 1000.0
		latencyMs = &ms
	}

	return ViewModel{
		ViewVariant:        SelectView(resolved.GameType, resolved.SessionState, payloadKeys),
		EffectiveRound:     resolved.Round,
		EffectiveMaxRounds: resolved.MaxRounds,
		Scoreboard:         game.BuildScoreboard(players),
		LatencyMs:          latencyMs,
		NewPlayerIDs:       s.roster.NewIDs(),
	}
}

// ResetConnection prepares the session for a fresh transport connection.
// Latency history belongs to one connection lifetime; snapshot versioning is
// deliberately untouched so a stale post-reconnect snapshot is still
// rejected.
func (s *Session) ResetConnection() {
	s.latency.Reset()
}

// Close tears the session down. All roster expiry timers and pending
// command timers are cancelled; nothing fires after this returns.
func (s *Session) Close() {
	s.roster.Close()
	s.dispatcher.Close()
}

func (s *Session) setPaused(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = v
}
