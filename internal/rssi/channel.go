package rssi

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

const (
	// IEEE 802.15.4 2.4 GHz band: channels 11 to 26, 5 MHz apart
	firstChannel   = 11
	lastChannel    = 26
	firstChannelHz = 2_405_000_000
	channelStepHz  = 5_000_000
)

// ChannelFrequency returns the centre frequency in Hz of a 2.4 GHz IEEE 802.15.4
// channel, or 0 for channel numbers outside 11-26.
func ChannelFrequency(ch uint8) float64 {
	if ch < firstChannel || ch > lastChannel {
		return 0
	}
	return float64(firstChannelHz + int(ch-firstChannel)*channelStepHz)
}

// FormatFrequency returns a channel's centre frequency as a human readable
// string, e.g. "2.41 GHz"
func FormatFrequency(ch uint8) string {
	hz := ChannelFrequency(ch)
	if hz == 0 {
		return "unknown"
	}

	fract, suffix := humanize.ComputeSI(hz)
	return fmt.Sprintf("%0.3f %sHz", fract, suffix)
}
