package protocol

import (
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/roman-kulish/radiosense/internal/rssi"
	"github.com/roman-kulish/radiosense/internal/wire"
)

var errRadioDown = errors.New("radio down")

// manualClock fires timers only when the test advances it
type manualClock struct {
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Time
	seq     int
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.seq++
	t := &manualTimer{clock: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward, firing every timer due on the way in order
func (c *manualClock) Advance(d time.Duration) {
	until := c.now.Add(d)
	for {
		next := c.nextDue(until)
		if next == nil {
			break
		}
		c.now = next.at
		next.stopped = true
		next.f()
	}
	c.now = until
}

func (c *manualClock) nextDue(until time.Time) *manualTimer {
	c.timers = slices.DeleteFunc(c.timers, func(t *manualTimer) bool { return t.stopped })
	sort.Slice(c.timers, func(i, j int) bool {
		if c.timers[i].at.Equal(c.timers[j].at) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].at.Before(c.timers[j].at)
	})
	if len(c.timers) == 0 || c.timers[0].at.After(until) {
		return nil
	}
	return c.timers[0]
}

// recordingRadio keeps everything a node transmits
type recordingRadio struct {
	codec    *wire.Codec
	sent     [][]byte
	channels []uint8
	failSend bool
	failTune bool
	level    int8
}

func (r *recordingRadio) Send(data []byte) error {
	if r.failSend {
		return errRadioDown
	}
	r.sent = append(r.sent, slices.Clone(data))
	return nil
}

func (r *recordingRadio) SetChannel(ch uint8) error {
	if r.failTune {
		return errRadioDown
	}
	r.channels = append(r.channels, ch)
	return nil
}

func (r *recordingRadio) ReadRSSI() int8 {
	return r.level
}

func (r *recordingRadio) messages() []*wire.Message {
	var out []*wire.Message
	for _, data := range r.sent {
		m, err := r.codec.DecodeMessage(data)
		if err != nil {
			panic(err)
		}
		out = append(out, m)
	}
	return out
}

// frameRecorder is a FrameSink keeping every frame it receives
type frameRecorder struct {
	frames []*AggregatedFrame
	err    error
}

func (f *frameRecorder) SendFrame(frame *AggregatedFrame) error {
	f.frames = append(f.frames, frame)
	return f.err
}

// staticGate reports the listed nodes at the failure threshold
type staticGate map[rssi.NodeID]bool

func (g staticGate) Reached(id rssi.NodeID) bool {
	return g[id]
}

func testConfig() Config {
	c := DefaultConfig()
	c.NodeCount = 3
	c.Channels = []uint8{11, 15}
	c.SlotTime = Duration(10 * time.Millisecond)
	c.WatchdogInitTime = Duration(time.Second)
	c.RootTolerance = Duration(20 * time.Millisecond)
	c.RfFailureThreshold = 2
	return c
}

func testCodec(config Config) *wire.Codec {
	codec, err := wire.NewCodec(config.NodeCount, config.Sentinels)
	if err != nil {
		panic(err)
	}
	return codec
}

func encode(codec *wire.Codec, m *wire.Message) []byte {
	data, err := codec.EncodeMessage(m)
	if err != nil {
		panic(err)
	}
	return data
}
