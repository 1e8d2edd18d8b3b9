package survey

import (
	"time"

	"github.com/roman-kulish/radiosense/internal/rssi"
)

// Session represents a single survey run of a fleet.
// Each session captures the fleet layout the frames were produced with.
type Session struct {
	ID        int64     `json:"id"`                      // Unique identifier for the session
	UUID      string    `json:"uuid"`                    // Globally unique identifier, safe to share across databases
	StartTime time.Time `json:"startTime"`               // When the session began
	Source    string    `json:"source"`                  // What produced the frames (e.g., "serial", "simulation")
	RootID    uint8     `json:"rootId"`                  // Node that collected the frames
	NodeCount int       `json:"nodeCount"`               // Slots per frame
	Channels  []uint8   `json:"channels"`                // Channel list of one epoch, in scan order
	Config    *string   `json:"config,string,omitempty"` // Optional protocol configuration in JSON format
}

// Sample is one slot of a frame. DBm is nil when the node was unreachable.
type Sample struct {
	NodeID uint8 `json:"nodeId"`
	DBm    *int8 `json:"dbm,omitempty"`
}

// Frame is an aggregated RSSI vector the root shipped for one channel window
type Frame struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"sessionId"`
	Epoch     uint32    `json:"epoch"`
	Channel   uint8     `json:"channel"`
	SenderID  uint8     `json:"senderId"`
	Timestamp time.Time `json:"timestamp"`
	TimedOut  bool      `json:"timedOut"`
	Samples   []Sample  `json:"samples"`
}

// NewFrame converts a vector into frame samples. Unmeasured and Invalid slots
// both store as unreachable.
func NewFrame(sessionID int64, epoch uint32, channel uint8, sender rssi.NodeID, ts time.Time, v rssi.Vector) *Frame {
	f := Frame{
		SessionID: sessionID,
		Epoch:     epoch,
		Channel:   channel,
		SenderID:  uint8(sender),
		Timestamp: ts.UTC(),
		Samples:   make([]Sample, len(v)),
	}

	for i, s := range v {
		f.Samples[i].NodeID = uint8(i)
		if dbm, ok := s.DBm(); ok {
			f.Samples[i].DBm = &dbm
		} else {
			f.TimedOut = true
		}
	}

	return &f
}

// Vector converts the frame samples back into a vector
func (f *Frame) Vector() rssi.Vector {
	v := rssi.NewVector(len(f.Samples))
	for _, s := range f.Samples {
		if int(s.NodeID) >= len(v) {
			continue
		}
		if s.DBm != nil {
			v[s.NodeID] = rssi.Reading(*s.DBm)
		} else {
			v[s.NodeID] = rssi.Invalid()
		}
	}
	return v
}

// Cell is the aggregate of one node on one channel over a session
type Cell struct {
	NodeID  uint8    `json:"nodeId"`
	Mean    *float64 `json:"mean,omitempty"` // Mean RSSI in dBm over the frames with a reading (nil if none)
	Min     *int8    `json:"min,omitempty"`
	Max     *int8    `json:"max,omitempty"`
	Frames  int      `json:"frames"`  // Frames that reported on the channel
	Missing int      `json:"missing"` // Frames in which the node was unreachable
}

// ChannelRow represents all nodes measured on one channel
type ChannelRow struct {
	Channel   uint8   `json:"channel"`
	Frequency float64 `json:"frequency"` // Centre frequency in Hz
	Cells     []Cell  `json:"cells"`
}

// Matrix is the channel by node summary of a session
type Matrix struct {
	Session *Session     `json:"session"`
	Rows    []ChannelRow `json:"rows"`
}

// Range returns the weakest and strongest mean in the matrix and whether any cell has a mean
func (m *Matrix) Range() (lo, hi float64, ok bool) {
	for _, row := range m.Rows {
		for _, c := range row.Cells {
			if c.Mean == nil {
				continue
			}
			if !ok {
				lo, hi, ok = *c.Mean, *c.Mean, true
				continue
			}
			lo = min(lo, *c.Mean)
			hi = max(hi, *c.Mean)
		}
	}
	return
}
