package app

import (
	"github.com/roman-kulish/radiosense/internal/rssi"
	"github.com/roman-kulish/radiosense/internal/survey"
)

const (
	// used when the session has no reading at all
	defaultMinRSSI = -100.0 // dBm
	defaultMaxRSSI = -30.0  // dBm

	// a matrix whose means are all within this range is padded to it
	minBoundsSpan = 10.0 // dB
)

// matrixBounds returns the color range for a matrix: the span of its cell
// means unless overridden, padded so that near equal means do not saturate.
func matrixBounds(m *survey.Matrix, minRSSI, maxRSSI *float64) Bounds {
	b := Bounds{Min: defaultMinRSSI, Max: defaultMaxRSSI}
	if lo, hi, ok := m.Range(); ok {
		b = Bounds{Min: lo, Max: hi}

		if span := b.Max - b.Min; span < minBoundsSpan {
			pad := (minBoundsSpan - span) / 2
			b.Min -= pad
			b.Max += pad
		}
		b.Max = min(b.Max, rssi.MaxReading)
	}

	if minRSSI != nil {
		b.Min = *minRSSI
	}
	if maxRSSI != nil {
		b.Max = *maxRSSI
	}

	return b
}
