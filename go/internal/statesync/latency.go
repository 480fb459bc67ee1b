package statesync

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// latencyWindow is the number of round-trip samples retained for the mean
const latencyWindow = 20

// LatencyTracker measures transport round-trip latency from snapshot
// timestamps. A state broadcast records its server emission timestamp; the
// matching acknowledgement closes the loop and the elapsed wall time is the
// authoritative sample (the ack's own one-leg delta is not used).
//
// The tracker lives for one connection; Reset is called on reconnect.
type LatencyTracker struct {
	clock clockwork.Clock

	mu        sync.Mutex
	lastState time.Time
	samples   []time.Duration
	next      int
}

// NewLatencyTracker creates a tracker driven by the given clock.
func NewLatencyTracker(clock clockwork.Clock) *LatencyTracker {
	return &LatencyTracker{
		clock:   clock,
		samples: make([]time.Duration, 0, latencyWindow),
	}
}

// ObserveState records the timestamp of an accepted state broadcast.
func (t *LatencyTracker) ObserveState(timestamp time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastState = timestamp
}

// ObserveAck closes the measurement loop for the most recent state
// broadcast. Acks that arrive before any broadcast, acks whose timestamp
// predates the recorded state timestamp (out-of-order delivery: they answer
// an older broadcast), and acks that would yield a negative round trip are
// all dropped without error.
func (t *LatencyTracker) ObserveAck(timestamp time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastState.IsZero() || timestamp.Before(t.lastState) {
		return
	}

	roundTrip := t.clock.Now().Sub(t.lastState)
	if roundTrip < 0 {
		return
	}

	if len(t.samples) < latencyWindow {
		t.samples = append(t.samples, roundTrip)
		return
	}
	// Ring is full: evict the oldest sample
	t.samples[t.next] = roundTrip
	t.next = (t.next + 1) % latencyWindow
}

// Mean returns the arithmetic mean of the retained samples. The second
// return value is false until at least one ack has been observed; zero is a
// valid measurement and must not be confused with absence of data.
func (t *LatencyTracker) Mean() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) == 0 {
		return 0, false
	}
	var total time.Duration
	for _, s := range t.samples {
		total += s
	}
	return total / time.Duration(len(t.samples)), true
}

// Reset discards all samples and the pending state timestamp. Called when a
// connection is torn down and re-established.
func (t *LatencyTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastState = time.Time{}
	t.samples = t.samples[:0]
	t.next = 0
}
