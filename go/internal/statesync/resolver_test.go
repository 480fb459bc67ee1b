package statesync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcdev12/partyhub/go/internal/game"
)

func TestResolveSnapshotWinsOverFallback(t *testing.T) {
	s := game.StateSnapshot{
		Version:      3,
		SessionState: game.SessionPlaying,
		Round:        3,
		MaxRounds:    10,
		GameType:     "bingo",
	}

	resolved := Resolve(&s, Fallback{Round: 1, MaxRounds: 5, GameType: "trivia"})

	assert.Equal(t, 3, resolved.Round)
	assert.Equal(t, 10, resolved.MaxRounds)
	assert.Equal(t, game.GameBingo, resolved.GameType)
	assert.True(t, resolved.Active)
}

func TestResolveFallbackCoversColdStart(t *testing.T) {
	resolved := Resolve(nil, Fallback{Round: 2, MaxRounds: 8, GameType: "TRIVIA"})

	assert.Equal(t, 2, resolved.Round)
	assert.Equal(t, 8, resolved.MaxRounds)
	assert.Equal(t, game.GameTrivia, resolved.GameType)
	assert.Equal(t, game.SessionLobby, resolved.SessionState)
	assert.False(t, resolved.Active)
}

func TestResolveZeroWithoutAnySource(t *testing.T) {
	resolved := Resolve(nil, Fallback{})

	assert.Equal(t, 0, resolved.Round)
	assert.Equal(t, 0, resolved.MaxRounds)
	assert.Equal(t, game.GameUnknown, resolved.GameType)
}

func TestResolveFallsBackToPropGameTypeWhenSnapshotUnknown(t *testing.T) {
	s := game.StateSnapshot{Version: 1, SessionState: game.SessionStarting, GameType: "???"}

	resolved := Resolve(&s, Fallback{GameType: "emoji_guess"})

	assert.Equal(t, game.GameEmoji, resolved.GameType)
	assert.True(t, resolved.Active)
}

func TestResolveActiveStates(t *testing.T) {
	for _, st := range []game.SessionState{
		game.SessionStarting, game.SessionPlaying, game.SessionRoundEnd, game.SessionPaused,
	} {
		s := game.StateSnapshot{Version: 1, SessionState: st}
		assert.True(t, Resolve(&s, Fallback{}).Active, "state=%s", st)
	}
	for _, st := range []game.SessionState{game.SessionLobby, game.SessionGameEnd} {
		s := game.StateSnapshot{Version: 1, SessionState: st}
		assert.False(t, Resolve(&s, Fallback{}).Active, "state=%s", st)
	}
}
