package node

import (
	"time"

	"github.com/roman-kulish/radiosense/internal/protocol"
)

// loopClock is a wall clock whose timer callbacks run on the event loop
type loopClock struct {
	post func(func()) bool
}

func (c loopClock) Now() time.Time {
	return time.Now()
}

func (c loopClock) AfterFunc(d time.Duration, f func()) protocol.Timer {
	return time.AfterFunc(d, func() {
		c.post(f)
	})
}

// loopRadio reports the RSSI of the reception being handled on the event loop.
// The driver's own reading may already belong to a later datagram.
type loopRadio struct {
	Transceiver
	level int8
}

func (r *loopRadio) ReadRSSI() int8 {
	return r.level
}
