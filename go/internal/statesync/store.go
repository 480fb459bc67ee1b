package statesync

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/partyhub/go/internal/game"
)

// ApplyResult is the outcome of offering a snapshot to the store
type ApplyResult int

const (
	// Applied means the snapshot replaced the current one
	Applied ApplyResult = iota
	// RejectedStale means the snapshot's version was not strictly greater
	// than the stored one; replays and out-of-order deliveries land here
	RejectedStale
)

// Subscriber receives each accepted snapshot exactly once, in version order.
type Subscriber func(game.StateSnapshot)

// SnapshotStore owns the current snapshot and its version counter. It is the
// single acceptance point for inbound state: a snapshot whose version is not
// strictly greater than the stored version has no observable effect.
type SnapshotStore struct {
	mu      sync.Mutex
	current *game.StateSnapshot
	subs    []Subscriber
}

// NewSnapshotStore creates an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Apply offers an incoming snapshot to the store. Acceptance swaps the stored
// snapshot and notifies subscribers before any later snapshot can be applied,
// so subscribers never observe versions out of order or twice.
func (s *SnapshotStore) Apply(incoming game.StateSnapshot) ApplyResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && incoming.Version <= s.current.Version {
		log.Debug().
			Int64("incoming_version", incoming.Version).
			Int64("current_version", s.current.Version).
			Msg("rejected stale snapshot")
		return RejectedStale
	}

	snap := incoming
	s.current = &snap
	for _, sub := range s.subs {
		sub(snap)
	}
	return Applied
}

// Current returns the latest accepted snapshot, if any.
func (s *SnapshotStore) Current() (game.StateSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return game.StateSnapshot{}, false
	}
	return *s.current, true
}

// Version returns the stored version, or -1 before the first snapshot.
func (s *SnapshotStore) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return -1
	}
	return s.current.Version
}

// Subscribe registers fn for every subsequently accepted snapshot.
func (s *SnapshotStore) Subscribe(fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}
