package statesync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/partyhub/go/internal/game"
	"github.com/mcdev12/partyhub/go/internal/protocol"
)

func newTestSession(t *testing.T, clock clockwork.Clock, fb Fallback) (*Session, *captureSend) {
	t.Helper()
	wire := &captureSend{}
	s := NewSession(clock, SessionConfig{Fallback: fb, NewPlayerTTL: time.Second}, wire.send)
	t.Cleanup(s.Close)
	return s, wire
}

func stateUpdate(t *testing.T, snap game.StateSnapshot) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(protocol.EventGameStateUpdate, snap)
	require.NoError(t, err)
	return env
}

func TestSessionColdStartUsesFallback(t *testing.T) {
	s, _ := newTestSession(t, clockwork.NewFakeClock(), Fallback{Round: 1, MaxRounds: 5, GameType: "trivia"})

	vm := s.ViewModel()

	assert.Equal(t, ViewWaiting, vm.ViewVariant)
	assert.Equal(t, 1, vm.EffectiveRound)
	assert.Equal(t, 5, vm.EffectiveMaxRounds)
	assert.Nil(t, vm.LatencyMs)
	assert.Empty(t, vm.NewPlayerIDs)
}

func TestSessionEndToEndWithStaleReplay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s, _ := newTestSession(t, clock, Fallback{Round: 1})

	v1 := game.StateSnapshot{
		Version:      1,
		Timestamp:    clock.Now(),
		SessionState: game.SessionStarting,
		Round:        1,
		MaxRounds:    3,
		GameType:     "BINGO",
	}
	require.NoError(t, s.HandleMessage(stateUpdate(t, v1)))

	v2 := v1
	v2.Version = 2
	v2.SessionState = game.SessionPlaying
	v2.Payload = map[string]json.RawMessage{
		game.PayloadKeyCalledItems: []byte(`["B4","N32"]`),
	}
	require.NoError(t, s.HandleMessage(stateUpdate(t, v2)))

	// Replay of v1 must have no observable effect
	require.NoError(t, s.HandleMessage(stateUpdate(t, v1)))

	vm := s.ViewModel()
	assert.Equal(t, ViewBingo, vm.ViewVariant)
	assert.Equal(t, 1, vm.EffectiveRound)
	assert.Equal(t, 3, vm.EffectiveMaxRounds)
}

func TestSessionSnapshotRoundBeatsFallback(t *testing.T) {
	s, _ := newTestSession(t, clockwork.NewFakeClock(), Fallback{Round: 1})

	require.NoError(t, s.HandleMessage(stateUpdate(t, game.StateSnapshot{
		Version:      1,
		SessionState: game.SessionPlaying,
		Round:        3,
		GameType:     "trivia",
	})))

	assert.Equal(t, 3, s.ViewModel().EffectiveRound)
}

func TestSessionEchoesAcceptedSnapshotsOnly(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s, wire := newTestSession(t, clock, Fallback{})

	v2 := game.StateSnapshot{Version: 2, Timestamp: clock.Now(), SessionState: game.SessionPlaying}
	require.NoError(t, s.HandleMessage(stateUpdate(t, v2)))
	require.Len(t, wire.commands, 1)
	assert.Equal(t, protocol.CmdStateReceived, wire.commands[0].Cmd)

	// Stale snapshot: no echo, no second command
	v1 := game.StateSnapshot{Version: 1, Timestamp: clock.Now(), SessionState: game.SessionLobby}
	require.NoError(t, s.HandleMessage(stateUpdate(t, v1)))
	assert.Len(t, wire.commands, 1)
}

func TestSessionLatencyFromStateAck(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s, _ := newTestSession(t, clock, Fallback{})

	stamp := clock.Now()
	require.NoError(t, s.HandleMessage(stateUpdate(t, game.StateSnapshot{
		Version: 1, Timestamp: stamp, SessionState: game.SessionPlaying,
	})))
	assert.Nil(t, s.ViewModel().LatencyMs)

	clock.Advance(30 * time.Millisecond)
	ack, err := protocol.NewEnvelope(protocol.EventStateAck, protocol.StateAckPayload{Version: 1, Timestamp: stamp})
	require.NoError(t, err)
	require.NoError(t, s.HandleMessage(ack))

	latency := s.ViewModel().LatencyMs
	require.NotNil(t, latency)
	assert.InDelta(t, 30.0, *latency, 0.001)
}

func TestSessionRosterAndScoreboard(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s, _ := newTestSession(t, clock, Fallback{})

	update, err := protocol.NewEnvelope(protocol.EventRoomUpdate, protocol.RoomUpdatePayload{
		Players: []game.Player{
			{ID: "a", Name: "Ana", Score: 2, Status: game.PlayerConnected},
			{ID: "b", Name: "Bo", Score: 9, Status: game.PlayerConnected},
		},
	})
	require.NoError(t, err)
	require.NoError(t, s.HandleMessage(update))

	vm := s.ViewModel()
	require.Len(t, vm.Scoreboard, 2)
	assert.Equal(t, "Bo", vm.Scoreboard[0].Name)
	assert.Contains(t, vm.NewPlayerIDs, "a")
	assert.Contains(t, vm.NewPlayerIDs, "b")
}

func TestSessionEarlyJoinSignalIsIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s, _ := newTestSession(t, clock, Fallback{})

	early, err := protocol.NewEnvelope(protocol.EventPlayerJoined, protocol.PlayerJoinedPayload{PlayerID: "p7"})
	require.NoError(t, err)
	require.NoError(t, s.HandleMessage(early))
	require.NoError(t, s.HandleMessage(early))

	assert.Contains(t, s.ViewModel().NewPlayerIDs, "p7")
}

func TestSessionPauseResumeOptimisticFlag(t *testing.T) {
	s, _ := newTestSession(t, clockwork.NewFakeClock(), Fallback{})

	require.NoError(t, s.Dispatcher().Send(protocol.CmdPauseGame, nil, nil))
	assert.True(t, s.Paused())

	require.NoError(t, s.Dispatcher().Send(protocol.CmdResumeGame, nil, nil))
	assert.False(t, s.Paused())
}

func TestSessionPreviewIsIndependent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s, _ := newTestSession(t, clock, Fallback{})

	preview, err := protocol.NewEnvelope(protocol.EventDisplaySyncState, game.StateSnapshot{
		Version: 9, SessionState: game.SessionPlaying, GameType: "trivia",
	})
	require.NoError(t, err)
	require.NoError(t, s.HandleMessage(preview))

	snap, ok := s.Preview()
	require.True(t, ok)
	assert.Equal(t, int64(9), snap.Version)

	// The primary view is untouched by display-sync traffic
	assert.Equal(t, ViewWaiting, s.ViewModel().ViewVariant)
}

func TestSessionUnknownEventDropped(t *testing.T) {
	s, _ := newTestSession(t, clockwork.NewFakeClock(), Fallback{})

	assert.NoError(t, s.HandleMessage(protocol.Envelope{Type: "confetti_burst", Data: []byte(`{}`)}))
}

func TestSessionResetConnectionClearsLatencyOnly(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s, _ := newTestSession(t, clock, Fallback{})

	stamp := clock.Now()
	require.NoError(t, s.HandleMessage(stateUpdate(t, game.StateSnapshot{
		Version: 4, Timestamp: stamp, SessionState: game.SessionPlaying,
	})))
	ack, err := protocol.NewEnvelope(protocol.EventStateAck, protocol.StateAckPayload{Version: 4, Timestamp: stamp})
	require.NoError(t, err)
	require.NoError(t, s.HandleMessage(ack))
	require.NotNil(t, s.ViewModel().LatencyMs)

	s.ResetConnection()
	assert.Nil(t, s.ViewModel().LatencyMs)

	// Versioning survives reconnect: an older snapshot is still rejected
	require.NoError(t, s.HandleMessage(stateUpdate(t, game.StateSnapshot{
		Version: 3, SessionState: game.SessionGameEnd,
	})))
	assert.True(t, s.ViewModel().ViewVariant == ViewInProgress)
}
