package protocol

import "time"

// Clock is the timer service of a node. Callbacks passed to AfterFunc must be
// delivered on the node's event loop, never concurrently with other handlers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc callback
type Timer interface {
	Stop() bool
}

// oneShot is a re-armable single-shot timer. A generation number makes a
// callback that was already queued when the timer got re-armed or stopped a no-op.
type oneShot struct {
	clock Clock
	t     Timer
	gen   uint64
}

func (o *oneShot) arm(d time.Duration, f func()) {
	o.stop()

	gen := o.gen
	o.t = o.clock.AfterFunc(max(d, 0), func() {
		if gen != o.gen {
			return
		}
		o.t = nil
		f()
	})
}

func (o *oneShot) stop() {
	o.gen++
	if o.t != nil {
		o.t.Stop()
		o.t = nil
	}
}

func (o *oneShot) pending() bool {
	return o.t != nil
}
