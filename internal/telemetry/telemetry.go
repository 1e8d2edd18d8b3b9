package telemetry

import (
	"time"

	"github.com/roman-kulish/radiosense/internal/protocol"
	"github.com/roman-kulish/radiosense/internal/rssi"
)

type Provider interface {
	Get() *Telemetry
}

// Counters is the protocol activity of a node since it started
type Counters struct {
	BeaconsSent    uint64 `json:"beaconsSent"`
	Received       uint64 `json:"received"`
	Forwarded      uint64 `json:"forwarded"`
	Dropped        uint64 `json:"dropped"`
	SendErrors     uint64 `json:"sendErrors"`
	FramesShipped  uint64 `json:"framesShipped,omitempty"`
	FramesTimedOut uint64 `json:"framesTimedOut,omitempty"`
	SinkErrors     uint64 `json:"sinkErrors,omitempty"`
	EpochsAdopted  uint64 `json:"epochsAdopted"`
}

// Telemetry is the health of a node at a point in time
type Telemetry struct {
	Timestamp time.Time `json:"timestamp"`           // When the snapshot was taken
	NodeID    uint8     `json:"nodeId"`              // Node identifier
	Role      string    `json:"role"`                // plain, root or sink
	State     string    `json:"state"`               // idle or scanning
	Epoch     uint32    `json:"epoch"`               // Current epoch
	Channel   uint8     `json:"channel"`             // Channel of the current window
	Frequency string    `json:"frequency,omitempty"` // Centre frequency of the channel, human readable
	Misses    uint32    `json:"misses"`              // Consecutive windows closed without any message
	Failures  []uint8   `json:"failures"`            // Failure counter of every node
	RSSI      []*int8   `json:"rssi"`                // Current sample store, nil where there is no reading
	Counters  Counters  `json:"counters"`
}

// FromStatus converts a node status snapshot taken at ts
func FromStatus(ts time.Time, s protocol.Status) *Telemetry {
	t := Telemetry{
		Timestamp: ts.UTC(),
		NodeID:    uint8(s.ID),
		Role:      s.Role.String(),
		State:     s.State.String(),
		Epoch:     s.Epoch,
		Misses:    s.Misses,
		Failures:  s.Failures,
		RSSI:      readings(s.Vector),
		Counters: Counters{
			BeaconsSent:    s.Stats.BeaconsSent,
			Received:       s.Stats.Received,
			Forwarded:      s.Stats.Forwarded,
			Dropped:        s.Stats.Dropped,
			SendErrors:     s.Stats.SendErrors,
			FramesShipped:  s.Stats.FramesShipped,
			FramesTimedOut: s.Stats.FramesTimedOut,
			SinkErrors:     s.Stats.SinkErrors,
			EpochsAdopted:  s.Stats.EpochsAdopted,
		},
	}

	if s.State == protocol.StateScanning {
		t.Channel = s.Window.Channel
		t.Frequency = rssi.FormatFrequency(s.Window.Channel)
	}

	return &t
}

func readings(v rssi.Vector) []*int8 {
	out := make([]*int8, len(v))
	for i, s := range v {
		if dbm, ok := s.DBm(); ok {
			out[i] = &dbm
		}
	}
	return out
}
