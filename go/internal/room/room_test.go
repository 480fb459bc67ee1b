package room

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/partyhub/go/internal/events"
	"github.com/mcdev12/partyhub/go/internal/game"
	"github.com/mcdev12/partyhub/go/internal/protocol"
)

// fakeBroadcaster records everything a room fans out.
type fakeBroadcaster struct {
	mu        sync.Mutex
	broadcast []protocol.Envelope
	direct    map[string][]protocol.Envelope
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{direct: make(map[string][]protocol.Envelope)}
}

func (b *fakeBroadcaster) BroadcastToRoom(roomID string, env protocol.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcast = append(b.broadcast, env)
}

func (b *fakeBroadcaster) SendToConnection(roomID, connID string, env protocol.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.direct[connID] = append(b.direct[connID], env)
}

func (b *fakeBroadcaster) snapshots(t *testing.T) []game.StateSnapshot {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var snaps []game.StateSnapshot
	for _, env := range b.broadcast {
		if env.Type != protocol.EventGameStateUpdate {
			continue
		}
		var s game.StateSnapshot
		require.NoError(t, json.Unmarshal(env.Data, &s))
		snaps = append(snaps, s)
	}
	return snaps
}

func command(t *testing.T, name protocol.CommandName, args interface{}) protocol.Command {
	t.Helper()
	cmd := protocol.Command{ID: "cmd-1", Cmd: name}
	if args != nil {
		data, err := json.Marshal(args)
		require.NoError(t, err)
		cmd.Args = data
	}
	return cmd
}

func TestRoomStartGameBroadcastsVersionedSnapshot(t *testing.T) {
	b := newFakeBroadcaster()
	r := NewRoom("r1", clockwork.NewFakeClock(), b, nil, nil)

	r.HandleCommand(context.Background(), "conn-1", command(t, protocol.CmdStartGame, map[string]interface{}{
		"game_type": "bingo",
		"settings":  map[string]int{"max_rounds": 5},
	}))

	snaps := b.snapshots(t)
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(1), snaps[0].Version)
	assert.Equal(t, game.SessionStarting, snaps[0].SessionState)
	assert.Equal(t, "bingo", snaps[0].GameType)
	assert.Equal(t, 5, snaps[0].MaxRounds)
	assert.Equal(t, 1, snaps[0].Round)

	// The sender got a success ack
	acks := b.direct["conn-1"]
	require.Len(t, acks, 1)
	assert.Equal(t, protocol.EventCommandAck, acks[0].Type)
}

func TestRoomStartGameRejectsUnknownType(t *testing.T) {
	b := newFakeBroadcaster()
	r := NewRoom("r1", clockwork.NewFakeClock(), b, nil, nil)

	r.HandleCommand(context.Background(), "conn-1", command(t, protocol.CmdStartGame, map[string]interface{}{
		"game_type": "charades",
	}))

	assert.Empty(t, b.snapshots(t))
	var ack protocol.Ack
	require.NoError(t, json.Unmarshal(b.direct["conn-1"][0].Data, &ack))
	assert.False(t, ack.Success)
}

func TestRoomVersionsIncreaseAcrossMutations(t *testing.T) {
	b := newFakeBroadcaster()
	r := NewRoom("r1", clockwork.NewFakeClock(), b, nil, nil)
	ctx := context.Background()

	r.HandleCommand(ctx, "c", command(t, protocol.CmdStartGame, map[string]interface{}{"game_type": "trivia"}))
	require.NoError(t, r.SetPayloadField(game.PayloadKeyCurrentQuestion, map[string]string{"text": "?"}))
	r.HandleCommand(ctx, "c", command(t, protocol.CmdEndGame, nil))

	snaps := b.snapshots(t)
	require.Len(t, snaps, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{snaps[0].Version, snaps[1].Version, snaps[2].Version})
	assert.Equal(t, game.SessionPlaying, snaps[1].SessionState)
	assert.Equal(t, game.SessionGameEnd, snaps[2].SessionState)
}

func TestRoomPauseResumeRestoresPriorState(t *testing.T) {
	b := newFakeBroadcaster()
	r := NewRoom("r1", clockwork.NewFakeClock(), b, nil, nil)
	ctx := context.Background()

	r.HandleCommand(ctx, "c", command(t, protocol.CmdStartGame, map[string]interface{}{"game_type": "trivia"}))
	require.NoError(t, r.SetPayloadField(game.PayloadKeyCurrentQuestion, "q"))

	r.HandleCommand(ctx, "c", command(t, protocol.CmdPauseGame, nil))
	r.HandleCommand(ctx, "c", command(t, protocol.CmdResumeGame, nil))

	snaps := b.snapshots(t)
	require.Len(t, snaps, 4)
	assert.Equal(t, game.SessionPaused, snaps[2].SessionState)
	assert.Equal(t, game.SessionPlaying, snaps[3].SessionState)

	// Pause/resume never produce command acks; only start_game was acked
	assert.Len(t, b.direct["c"], 1)
}

func TestRoomPauseInLobbyIsIgnored(t *testing.T) {
	b := newFakeBroadcaster()
	r := NewRoom("r1", clockwork.NewFakeClock(), b, nil, nil)

	r.HandleCommand(context.Background(), "c", command(t, protocol.CmdPauseGame, nil))

	assert.Empty(t, b.snapshots(t))
}

func TestRoomJoinBroadcastsEarlySignalAndRoster(t *testing.T) {
	b := newFakeBroadcaster()
	r := NewRoom("r1", clockwork.NewFakeClock(), b, nil, nil)

	r.Join(game.Player{ID: "p1", Name: "Ana"})

	require.Len(t, b.broadcast, 2)
	assert.Equal(t, protocol.EventPlayerJoined, b.broadcast[0].Type)
	assert.Equal(t, protocol.EventRoomUpdate, b.broadcast[1].Type)

	// A reconnect re-sends the roster but not the join signal
	r.Join(game.Player{ID: "p1", Name: "Ana"})
	require.Len(t, b.broadcast, 3)
	assert.Equal(t, protocol.EventRoomUpdate, b.broadcast[2].Type)
}

func TestRoomKickPlayer(t *testing.T) {
	b := newFakeBroadcaster()
	r := NewRoom("r1", clockwork.NewFakeClock(), b, nil, nil)
	r.Join(game.Player{ID: "p1", Name: "Ana"})
	r.Join(game.Player{ID: "p2", Name: "Bo"})

	r.HandleCommand(context.Background(), "host", command(t, protocol.CmdKickPlayer, map[string]string{"player_id": "p1"}))

	var ack protocol.Ack
	require.NoError(t, json.Unmarshal(b.direct["host"][0].Data, &ack))
	assert.True(t, ack.Success)

	last := b.broadcast[len(b.broadcast)-1]
	require.Equal(t, protocol.EventRoomUpdate, last.Type)
	var roster protocol.RoomUpdatePayload
	require.NoError(t, json.Unmarshal(last.Data, &roster))
	require.Len(t, roster.Players, 1)
	assert.Equal(t, "p2", roster.Players[0].ID)
}

func TestRoomStateEchoAnsweredWithStateAck(t *testing.T) {
	b := newFakeBroadcaster()
	clock := clockwork.NewFakeClock()
	r := NewRoom("r1", clock, b, nil, nil)

	echo := protocol.StateAckPayload{Version: 3, Timestamp: clock.Now()}
	r.HandleCommand(context.Background(), "conn-9", command(t, protocol.CmdStateReceived, echo))

	msgs := b.direct["conn-9"]
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.EventStateAck, msgs[0].Type)

	var ack protocol.StateAckPayload
	require.NoError(t, json.Unmarshal(msgs[0].Data, &ack))
	assert.Equal(t, int64(3), ack.Version)
}

func TestRoomContentCommandsWithoutStoreFail(t *testing.T) {
	b := newFakeBroadcaster()
	r := NewRoom("r1", clockwork.NewFakeClock(), b, nil, nil)

	r.HandleCommand(context.Background(), "host", command(t, protocol.CmdGetChallenges, nil))

	var ack protocol.Ack
	require.NoError(t, json.Unmarshal(b.direct["host"][0].Data, &ack))
	assert.False(t, ack.Success)
	assert.Contains(t, ack.Error, "content store")
}

// fakeSink records every lifecycle event a room emits.
type fakeSink struct {
	mu      sync.Mutex
	started []events.SessionStartedPayload
	ended   []events.SessionEndedPayload
	kicked  []events.PlayerKickedPayload
}

func (s *fakeSink) SessionStarted(ctx context.Context, p events.SessionStartedPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, p)
	return nil
}

func (s *fakeSink) SessionEnded(ctx context.Context, p events.SessionEndedPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = append(s.ended, p)
	return nil
}

func (s *fakeSink) PlayerKicked(ctx context.Context, p events.PlayerKickedPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kicked = append(s.kicked, p)
	return nil
}

func TestRoomEmitsLifecycleEvents(t *testing.T) {
	b := newFakeBroadcaster()
	sink := &fakeSink{}
	r := NewRoom("r1", clockwork.NewFakeClock(), b, nil, sink)
	ctx := context.Background()

	r.Join(game.Player{ID: "p1", Name: "Ana", Score: 7})
	r.Join(game.Player{ID: "p2", Name: "Bo"})

	r.HandleCommand(ctx, "host", command(t, protocol.CmdStartGame, map[string]interface{}{
		"game_type": "trivia",
		"settings":  map[string]int{"max_rounds": 3},
	}))
	r.HandleCommand(ctx, "host", command(t, protocol.CmdKickPlayer, map[string]string{"player_id": "p2"}))
	r.HandleCommand(ctx, "host", command(t, protocol.CmdEndGame, nil))

	require.Len(t, sink.started, 1)
	assert.Equal(t, "r1", sink.started[0].RoomID)
	assert.Equal(t, "trivia", sink.started[0].GameType)
	assert.Equal(t, 3, sink.started[0].MaxRounds)

	require.Len(t, sink.kicked, 1)
	assert.Equal(t, "p2", sink.kicked[0].PlayerID)

	require.Len(t, sink.ended, 1)
	var winners []game.ScoreboardEntry
	require.NoError(t, json.Unmarshal(sink.ended[0].Winners, &winners))
	require.Len(t, winners, 1)
	assert.Equal(t, "Ana", winners[0].Name)
}

func TestRoomFailedCommandsEmitNothing(t *testing.T) {
	b := newFakeBroadcaster()
	sink := &fakeSink{}
	r := NewRoom("r1", clockwork.NewFakeClock(), b, nil, sink)
	ctx := context.Background()

	r.HandleCommand(ctx, "host", command(t, protocol.CmdStartGame, map[string]interface{}{
		"game_type": "charades",
	}))
	r.HandleCommand(ctx, "host", command(t, protocol.CmdKickPlayer, map[string]string{"player_id": "ghost"}))

	assert.Empty(t, sink.started)
	assert.Empty(t, sink.kicked)
}

func TestManagerGetOrCreate(t *testing.T) {
	b := newFakeBroadcaster()
	m := NewManager(clockwork.NewFakeClock(), b, nil, nil)

	r1 := m.GetOrCreate("abc")
	r2 := m.GetOrCreate("abc")
	assert.Same(t, r1, r2)
	assert.Equal(t, 1, m.Count())

	m.Remove("abc")
	assert.Nil(t, m.Get("abc"))
}
