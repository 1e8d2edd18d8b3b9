package protocol

import (
	"time"

	"github.com/roman-kulish/radiosense/internal/rssi"
)

// Watchdog supervises a channel window. It fires once per window, unless
// message activity pushed the deadline further, in which case it re-arms for
// the remainder instead.
//
// It also keeps two kinds of counters: a miss counter for windows closed
// without any message, and per-node failure counters for slots left unfilled.
type Watchdog struct {
	clock Clock
	timer oneShot
	grace time.Duration

	deadline time.Time
	activity bool
	onExpire func()

	misses    uint32
	threshold uint8
	failures  []uint8
}

// NewWatchdog creates a watchdog for a fleet of nodeCount nodes
func NewWatchdog(clock Clock, nodeCount int, threshold uint8, grace time.Duration, onExpire func()) *Watchdog {
	return &Watchdog{
		clock:     clock,
		timer:     oneShot{clock: clock},
		grace:     grace,
		onExpire:  onExpire,
		threshold: threshold,
		failures:  make([]uint8, nodeCount),
	}
}

// ArmInit arms the startup one-shot, which calls f instead of the window expiry handler
func (w *Watchdog) ArmInit(d time.Duration, f func()) {
	w.deadline = w.clock.Now().Add(d)
	w.timer.arm(d, f)
}

// Arm opens a new window that closes after d
func (w *Watchdog) Arm(d time.Duration) {
	w.activity = false
	w.deadline = w.clock.Now().Add(d)
	w.timer.arm(d, w.fire)
}

// Reanchor moves the deadline of the current window
func (w *Watchdog) Reanchor(deadline time.Time) {
	w.deadline = deadline
	w.timer.arm(deadline.Sub(w.clock.Now()), w.fire)
}

// Extend records message activity. The window stays open for at least the
// grace period from now.
func (w *Watchdog) Extend() {
	w.activity = true
	w.misses = 0

	if until := w.clock.Now().Add(w.grace); until.After(w.deadline) {
		w.deadline = until
	}
}

// Stop cancels the pending timer
func (w *Watchdog) Stop() {
	w.timer.stop()
}

// Deadline returns when the current window closes
func (w *Watchdog) Deadline() time.Time {
	return w.deadline
}

func (w *Watchdog) fire() {
	now := w.clock.Now()
	if now.Before(w.deadline) {
		w.timer.arm(w.deadline.Sub(now), w.fire)
		return
	}

	if !w.activity {
		w.misses++
	}
	w.onExpire()
}

// Misses returns the number of consecutive windows closed without any message
func (w *Watchdog) Misses() uint32 {
	return w.misses
}

// Reached reports whether the node's failure counter is at the threshold
func (w *Watchdog) Reached(id rssi.NodeID) bool {
	if int(id) >= len(w.failures) {
		return false
	}
	return w.failures[id] >= w.threshold
}

// Failures returns the failure counter of a node
func (w *Watchdog) Failures(id rssi.NodeID) uint8 {
	if int(id) >= len(w.failures) {
		return 0
	}
	return w.failures[id]
}

// CloseWindow counts every slot still Unmeasured as a failure and forces the
// slots at the threshold to Invalid. Returns the nodes invalidated by this call.
func (w *Watchdog) CloseWindow(store *Store) []rssi.NodeID {
	var invalidated []rssi.NodeID
	for i := range w.failures {
		id := rssi.NodeID(i)
		if !store.Read(id).IsUnmeasured() {
			continue
		}

		if w.failures[i] < w.threshold {
			w.failures[i]++
		}
		if w.failures[i] >= w.threshold && store.Write(id, rssi.Invalid()) {
			invalidated = append(invalidated, id)
		}
	}
	return invalidated
}

// ResetEpoch clears the failure counter of every node that produced a real
// reading during the finished epoch. Counters of silent nodes carry over.
func (w *Watchdog) ResetEpoch(finished rssi.Vector) {
	for i, s := range finished {
		if i < len(w.failures) && s.IsReading() {
			w.failures[i] = 0
		}
	}
}
