package rssi

import (
	"errors"
	"fmt"
)

const (
	// MinReading and MaxReading bound a real RSSI reading in dBm
	MinReading = -128
	MaxReading = 0

	// DefaultUnmeasured is the historical template value for a slot not yet written.
	// It is well above any possible RSSI value, but not 127.
	DefaultUnmeasured int8 = 81

	// DefaultInvalid marks a node confirmed unreachable
	DefaultInvalid int8 = 127
)

// NodeID identifies a node in the fleet, range [0, NodeCount)
type NodeID uint8

// Kind is the state of a single RSSI slot
type Kind uint8

const (
	KindUnmeasured Kind = iota
	KindInvalid
	KindReading
)

func (k Kind) String() string {
	switch k {
	case KindUnmeasured:
		return "unmeasured"
	case KindInvalid:
		return "invalid"
	case KindReading:
		return "reading"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Sample is a tagged RSSI value. The zero value is Unmeasured.
type Sample struct {
	kind Kind
	dbm  int8
}

// Unmeasured returns a sample for a slot never written in the current epoch
func Unmeasured() Sample {
	return Sample{}
}

// Invalid returns a sample for a node confirmed unreachable
func Invalid() Sample {
	return Sample{kind: KindInvalid}
}

// Reading returns a real reading, clamped to [MinReading, MaxReading]
func Reading(dbm int8) Sample {
	return Sample{kind: KindReading, dbm: min(dbm, MaxReading)}
}

func (s Sample) Kind() Kind { return s.kind }

func (s Sample) IsReading() bool { return s.kind == KindReading }

func (s Sample) IsUnmeasured() bool { return s.kind == KindUnmeasured }

func (s Sample) IsInvalid() bool { return s.kind == KindInvalid }

// DBm returns the reading in dBm and whether the sample is a real reading
func (s Sample) DBm() (int8, bool) {
	return s.dbm, s.kind == KindReading
}

func (s Sample) String() string {
	if s.kind == KindReading {
		return fmt.Sprintf("%ddBm", s.dbm)
	}
	return s.kind.String()
}

// Sentinels maps the tagged sample to the sentinel bytes used on the wire
type Sentinels struct {
	Unmeasured int8 `yaml:"unmeasured" json:"unmeasured"`
	Invalid    int8 `yaml:"invalid" json:"invalid"`
}

// DefaultSentinels returns the historical sentinel values
func DefaultSentinels() Sentinels {
	return Sentinels{
		Unmeasured: DefaultUnmeasured,
		Invalid:    DefaultInvalid,
	}
}

// Validate checks the sentinels cannot collide with each other or with a real reading
func (s Sentinels) Validate() error {
	var errs []error
	if s.Unmeasured <= MaxReading {
		errs = append(errs, fmt.Errorf("unmeasured sentinel %d overlaps the reading range", s.Unmeasured))
	}
	if s.Invalid <= MaxReading {
		errs = append(errs, fmt.Errorf("invalid sentinel %d overlaps the reading range", s.Invalid))
	}
	if s.Unmeasured == s.Invalid {
		errs = append(errs, fmt.Errorf("unmeasured and invalid sentinels must differ: %d", s.Invalid))
	}
	return errors.Join(errs...)
}

// Encode converts a sample into its wire byte
func (s Sentinels) Encode(sample Sample) int8 {
	switch sample.kind {
	case KindReading:
		return sample.dbm
	case KindInvalid:
		return s.Invalid
	default:
		return s.Unmeasured
	}
}

// Decode converts a wire byte into a sample. Positive values other than the
// sentinels cannot be a reading and decode as Invalid.
func (s Sentinels) Decode(b int8) Sample {
	switch {
	case b == s.Unmeasured:
		return Unmeasured()
	case b == s.Invalid:
		return Invalid()
	case b > MaxReading:
		return Invalid()
	default:
		return Reading(b)
	}
}
