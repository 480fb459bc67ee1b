package statesync

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/partyhub/go/internal/game"
)

// DefaultNewPlayerTTL is how long a player stays in the "just joined" set
const DefaultNewPlayerTTL = time.Second

// RosterTracker recovers join events from whole-roster replacements and
// maintains the transient new-player set that gates one-shot join
// animations. It owns every expiry timer it starts: timers are stored in a
// map indexed by player id, replaced on duplicate signals, and stopped on
// roster-clear and teardown so none can fire after disposal.
type RosterTracker struct {
	clock clockwork.Clock
	ttl   time.Duration

	mu     sync.Mutex
	known  map[string]struct{}
	fresh  map[string]clockwork.Timer
	closed bool
}

// NewRosterTracker creates a tracker with the given expiry window.
func NewRosterTracker(clock clockwork.Clock, ttl time.Duration) *RosterTracker {
	if ttl <= 0 {
		ttl = DefaultNewPlayerTTL
	}
	return &RosterTracker{
		clock: clock,
		ttl:   ttl,
		known: make(map[string]struct{}),
		fresh: make(map[string]clockwork.Timer),
	}
}

// Update applies a full roster replacement and returns the ids that were not
// present in the previous roster. The comparison baseline is captured before
// the new roster is applied; otherwise every player would look new on every
// update.
//
// An empty roster is the disconnect-all case: the new-set is cleared and all
// pending timers cancelled immediately, so returning players do not replay
// stale join animations.
func (r *RosterTracker) Update(players []game.Player) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	if len(players) == 0 {
		r.clearLocked()
		r.known = make(map[string]struct{})
		return nil
	}

	current := make(map[string]struct{}, len(players))
	var joined []string
	for _, p := range players {
		current[p.ID] = struct{}{}
		if _, ok := r.known[p.ID]; !ok {
			joined = append(joined, p.ID)
			r.markFreshLocked(p.ID)
		}
	}
	r.known = current
	return joined
}

// MarkJoined handles the out-of-band early join signal. If the id is already
// marked new, no duplicate timer is started.
func (r *RosterTracker) MarkJoined(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || id == "" {
		return
	}
	if _, ok := r.fresh[id]; ok {
		return
	}
	r.markFreshLocked(id)
}

// NewIDs returns a snapshot of the current new-player set.
func (r *RosterTracker) NewIDs() map[string]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make(map[string]struct{}, len(r.fresh))
	for id := range r.fresh {
		ids[id] = struct{}{}
	}
	return ids
}

// Close stops every pending timer. The tracker accepts no further updates.
func (r *RosterTracker) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.clearLocked()
}

// markFreshLocked inserts id into the new-set with a fresh expiry timer,
// replacing any existing timer for the same id.
func (r *RosterTracker) markFreshLocked(id string) {
	if existing, ok := r.fresh[id]; ok {
		existing.Stop()
	}
	var timer clockwork.Timer
	timer = r.clock.AfterFunc(r.ttl, func() {
		r.expire(id, timer)
	})
	r.fresh[id] = timer
}

// expire removes id from the new-set when its timer fires. Membership expiry
// is independent of further roster updates. A timer that was replaced while
// already firing must not evict its successor's membership, hence the
// identity check.
func (r *RosterTracker) expire(id string, timer clockwork.Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.fresh[id] != timer {
		return
	}
	delete(r.fresh, id)
	log.Debug().Str("player_id", id).Msg("new-player animation window expired")
}

func (r *RosterTracker) clearLocked() {
	for id, timer := range r.fresh {
		timer.Stop()
		delete(r.fresh, id)
	}
}
