package statesync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/partyhub/go/internal/game"
)

func snap(version int64, state game.SessionState) game.StateSnapshot {
	return game.StateSnapshot{Version: version, SessionState: state}
}

func TestSnapshotStoreAcceptsIncreasingVersions(t *testing.T) {
	store := NewSnapshotStore()

	assert.Equal(t, Applied, store.Apply(snap(1, game.SessionLobby)))
	assert.Equal(t, Applied, store.Apply(snap(2, game.SessionPlaying)))

	current, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, int64(2), current.Version)
}

func TestSnapshotStoreRejectsStaleAndEqualVersions(t *testing.T) {
	store := NewSnapshotStore()
	require.Equal(t, Applied, store.Apply(snap(5, game.SessionPlaying)))

	assert.Equal(t, RejectedStale, store.Apply(snap(5, game.SessionGameEnd)))
	assert.Equal(t, RejectedStale, store.Apply(snap(3, game.SessionGameEnd)))

	// The stored snapshot is untouched by rejected writes
	current, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, int64(5), current.Version)
	assert.Equal(t, game.SessionPlaying, current.SessionState)
}

func TestSnapshotStoreNotifiesInOrderExactlyOnce(t *testing.T) {
	store := NewSnapshotStore()

	var seen []int64
	store.Subscribe(func(s game.StateSnapshot) {
		seen = append(seen, s.Version)
	})

	store.Apply(snap(1, game.SessionLobby))
	store.Apply(snap(2, game.SessionPlaying))
	store.Apply(snap(2, game.SessionPlaying)) // replay: no duplicate notification
	store.Apply(snap(1, game.SessionLobby))   // stale: no notification
	store.Apply(snap(3, game.SessionRoundEnd))

	assert.Equal(t, []int64{1, 2, 3}, seen)
}

func TestSnapshotStoreEmpty(t *testing.T) {
	store := NewSnapshotStore()

	_, ok := store.Current()
	assert.False(t, ok)
	assert.Equal(t, int64(-1), store.Version())
}
