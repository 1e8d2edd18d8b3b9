package protocol

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/roman-kulish/radiosense/internal/rssi"
	"github.com/roman-kulish/radiosense/internal/wire"
)

const (
	OutcomeMerged Outcome = iota
	OutcomeForwarded
	OutcomeDuplicate
	OutcomeEcho
)

// Outcome of processing a message of the current window
type Outcome int

func (o Outcome) String() string {
	switch o {
	case OutcomeMerged:
		return "merged"
	case OutcomeForwarded:
		return "forwarded"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeEcho:
		return "echo"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// AggregatedFrame is the vector the root hands to the sink once per channel window
type AggregatedFrame struct {
	SenderID  rssi.NodeID
	Channel   uint8
	Epoch     uint32
	RSSI      rssi.Vector
	TimedOut  bool // some node has no reading in this frame
	Timestamp time.Time
}

// FrameSink consumes aggregated frames at the root
type FrameSink interface {
	SendFrame(f *AggregatedFrame) error
}

// Aggregator merges flood messages into the local store and puts beacons and
// forwarded copies on air.
type Aggregator struct {
	id     rssi.NodeID
	store  *Store
	dedup  *dedupSet
	codec  *wire.Codec
	radio  Radio
	clock  Clock
	stats  *Stats
	logger *slog.Logger
}

func newAggregator(id rssi.NodeID, store *Store, dedupCapacity int, codec *wire.Codec, radio Radio, clock Clock, stats *Stats, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		id:     id,
		store:  store,
		dedup:  newDedupSet(dedupCapacity),
		codec:  codec,
		radio:  radio,
		clock:  clock,
		stats:  stats,
		logger: logger,
	}
}

// Open drops the duplicate suppression state of the previous window
func (a *Aggregator) Open() {
	a.dedup.clear()
}

// Beacon transmits the local vector as the origin of a new flood
func (a *Aggregator) Beacon(w Window) {
	a.dedup.add(floodKey{epoch: w.Epoch, channel: w.Channel, origin: a.id})

	if a.send(a.id, w) {
		a.stats.BeaconsSent++
	}
}

// Receive processes a message that belongs to the current window. measured is
// the RSSI the radio reported for this transmission.
func (a *Aggregator) Receive(m *wire.Message, measured int8, w Window, forward bool) Outcome {
	a.stats.Received++

	// the physical layer measured the sender, whoever originated the flood
	a.store.Write(m.Sender, rssi.Reading(measured))
	a.store.Merge(m.RSSI)

	if m.Origin == a.id {
		return OutcomeEcho
	}
	if !a.dedup.add(floodKey{epoch: m.Seq, channel: m.Channel, origin: m.Origin}) {
		return OutcomeDuplicate
	}
	if !forward {
		return OutcomeMerged
	}

	if a.send(m.Origin, w) {
		a.stats.Forwarded++
	}
	return OutcomeForwarded
}

func (a *Aggregator) send(origin rssi.NodeID, w Window) bool {
	data, err := a.codec.EncodeMessage(&wire.Message{
		Sender:  a.id,
		Origin:  origin,
		Channel: w.Channel,
		Seq:     w.Epoch,
		RSSI:    a.store.Snapshot(),
	})
	if err != nil {
		a.stats.SendErrors++
		a.logger.Error(fmt.Sprintf("failed to encode message: %s", err.Error()))
		return false
	}

	if err = a.radio.Send(data); err != nil {
		// no immediate retry, the next window transmits again
		a.stats.SendErrors++
		a.logger.Warn(fmt.Sprintf("failed to transmit: %s", err.Error()), slog.Int("origin", int(origin)))
		return false
	}
	return true
}

// Package builds the frame for the current window. Unmeasured slots ship as Invalid.
func (a *Aggregator) Package(w Window) *AggregatedFrame {
	v := a.store.Snapshot()
	return &AggregatedFrame{
		SenderID:  a.id,
		Channel:   w.Channel,
		Epoch:     w.Epoch,
		RSSI:      v.Sealed(),
		TimedOut:  v.Count(rssi.KindReading) < len(v),
		Timestamp: a.clock.Now(),
	}
}
