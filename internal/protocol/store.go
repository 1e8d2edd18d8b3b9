package protocol

import "github.com/roman-kulish/radiosense/internal/rssi"

// FailureGate reports whether a node has reached the failure threshold
type FailureGate interface {
	Reached(id rssi.NodeID) bool
}

// Store holds one sample per known node for the current epoch.
//
// A slot moves from Unmeasured to a reading at most once per epoch, and to
// Invalid only when the failure gate allows it. Only Reset brings a slot back
// to Unmeasured.
type Store struct {
	samples rssi.Vector
	gate    FailureGate
}

// NewStore creates a store of n Unmeasured slots
func NewStore(n int, gate FailureGate) *Store {
	return &Store{
		samples: rssi.NewVector(n),
		gate:    gate,
	}
}

// Reset marks every slot Unmeasured
func (s *Store) Reset() {
	clear(s.samples)
}

// Write sets slot id and reports whether the slot changed
func (s *Store) Write(id rssi.NodeID, v rssi.Sample) bool {
	if int(id) >= len(s.samples) {
		return false
	}

	cur := s.samples[id]
	switch {
	case v.IsReading():
		if !cur.IsUnmeasured() {
			return false
		}
	case v.IsInvalid():
		if cur.IsInvalid() || s.gate == nil || !s.gate.Reached(id) {
			return false
		}
	default:
		return false
	}

	s.samples[id] = v
	return true
}

// Read returns the sample at slot id; out of range ids read as Unmeasured
func (s *Store) Read(id rssi.NodeID) rssi.Sample {
	if int(id) >= len(s.samples) {
		return rssi.Unmeasured()
	}
	return s.samples[id]
}

// IsComplete reports whether no slot is Unmeasured
func (s *Store) IsComplete() bool {
	return s.samples.Complete()
}

// Snapshot returns a copy safe to put into an outgoing message
func (s *Store) Snapshot() rssi.Vector {
	return s.samples.Clone()
}

// Merge applies an incoming vector: real readings fill Unmeasured slots,
// everything else is ignored. Returns the number of slots written.
func (s *Store) Merge(v rssi.Vector) int {
	var n int
	for i, sample := range v {
		if i >= len(s.samples) {
			break
		}
		if sample.IsReading() && s.Write(rssi.NodeID(i), sample) {
			n++
		}
	}
	return n
}

func (s *Store) Len() int {
	return len(s.samples)
}
