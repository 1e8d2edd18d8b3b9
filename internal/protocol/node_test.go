package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/radiosense/internal/rssi"
	"github.com/roman-kulish/radiosense/internal/wire"
)

type testNode struct {
	*Node
	clock  *manualClock
	radio  *recordingRadio
	frames *frameRecorder
	codec  *wire.Codec
}

func startNode(t *testing.T, config Config, id rssi.NodeID, r Role) *testNode {
	t.Helper()

	codec := testCodec(config)
	clock := newManualClock()
	radio := &recordingRadio{codec: codec, level: -42}
	frames := &frameRecorder{}

	n, err := NewNode(config, id, r, clock, radio, WithFrameSink(frames))
	require.NoError(t, err)
	n.Start()

	return &testNode{Node: n, clock: clock, radio: radio, frames: frames, codec: codec}
}

func (tn *testNode) deliver(sender, origin rssi.NodeID, channel uint8, seq uint32, v rssi.Vector, measured int8) {
	tn.radio.level = measured
	tn.HandleReceive(encode(tn.codec, &wire.Message{
		Sender:  sender,
		Origin:  origin,
		Channel: channel,
		Seq:     seq,
		RSSI:    v,
	}))
}

func TestNewNode_RoleValidation(t *testing.T) {
	config := testConfig()
	clock := newManualClock()
	radio := &recordingRadio{}

	tests := []struct {
		name    string
		id      rssi.NodeID
		role    Role
		options []func(*Node)
		wantErr bool
	}{
		{"plain", 0, RolePlain, nil, false},
		{"root with log sink", 1, RoleRoot, nil, false},
		{"sink with frame sink", 1, RoleSink, []func(*Node){WithFrameSink(&frameRecorder{})}, false},
		{"sink without frame sink", 1, RoleSink, nil, true},
		{"root id as plain", 1, RolePlain, nil, true},
		{"root role off the root id", 2, RoleRoot, nil, true},
		{"unknown role", 0, Role("gateway"), nil, true},
		{"id outside fleet", 3, RolePlain, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewNode(config, tt.id, tt.role, clock, radio, tt.options...)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.role, n.Role())
			assert.Equal(t, StateIdle, n.Status().State)
		})
	}
}

func TestNewNode_InvalidConfig(t *testing.T) {
	config := testConfig()
	config.Channels = nil
	config.RfFailureThreshold = 0

	_, err := NewNode(config, 0, RolePlain, newManualClock(), &recordingRadio{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel")
	assert.Contains(t, err.Error(), "rfFailureThreshold")
}

func TestNode_StartupWatchdog(t *testing.T) {
	config := testConfig()
	n := startNode(t, config, 0, RolePlain)

	// listening on the first channel from boot
	require.Equal(t, []uint8{11}, n.radio.channels)
	require.Equal(t, StateIdle, n.Status().State)

	n.clock.Advance(config.WatchdogInitTime.Std() - time.Millisecond)
	require.Equal(t, StateIdle, n.Status().State)

	n.clock.Advance(time.Millisecond)
	status := n.Status()
	require.Equal(t, StateScanning, status.State)
	assert.Equal(t, uint32(1), status.Epoch)
	assert.Equal(t, uint8(11), status.Window.Channel)

	// node 0 transmits at the start of its window
	require.Len(t, n.radio.sent, 1)
	m := n.radio.messages()[0]
	assert.Equal(t, rssi.NodeID(0), m.Sender)
	assert.Equal(t, rssi.NodeID(0), m.Origin)
	assert.Equal(t, uint32(1), m.Seq)
	assert.Equal(t, uint8(11), m.Channel)
}

func TestNode_RotatesChannels(t *testing.T) {
	config := testConfig()
	config.Channels = []uint8{11, 15, 20}
	n := startNode(t, config, 2, RolePlain)

	dwell := config.Dwell(RolePlain)
	n.clock.Advance(config.WatchdogInitTime.Std())

	var seen []uint8
	var epochs []uint32
	for range 6 {
		s := n.Status()
		seen = append(seen, s.Window.Channel)
		epochs = append(epochs, s.Epoch)
		n.clock.Advance(dwell)
	}

	assert.Equal(t, []uint8{11, 15, 20, 11, 15, 20}, seen)
	assert.Equal(t, []uint32{1, 1, 1, 2, 2, 2}, epochs)
	assert.Equal(t, uint32(6), n.Status().Misses)
}

func TestNode_RootShipsFramePerWindow(t *testing.T) {
	config := testConfig()
	n := startNode(t, config, 1, RoleRoot)

	// nobody else is alive: every window times out
	const epochs = 3
	n.clock.Advance(config.WatchdogInitTime.Std())
	n.clock.Advance(time.Duration(epochs*len(config.Channels)) * config.Dwell(RoleRoot))

	require.Len(t, n.frames.frames, epochs*len(config.Channels))
	for i, f := range n.frames.frames {
		assert.Equal(t, config.Channels[i%len(config.Channels)], f.Channel)
		assert.Equal(t, uint32(i/len(config.Channels)+1), f.Epoch)
		assert.Equal(t, rssi.NodeID(1), f.SenderID)
		assert.True(t, f.TimedOut)
		assert.Equal(t, config.NodeCount, f.RSSI.Count(rssi.KindInvalid))
	}

	stats := n.Status().Stats
	assert.Equal(t, uint64(epochs*len(config.Channels)), stats.FramesShipped)
	assert.Equal(t, stats.FramesShipped, stats.FramesTimedOut)
}

func TestNode_RootMergesAndNeverForwards(t *testing.T) {
	config := testConfig()
	n := startNode(t, config, 1, RoleRoot)
	n.clock.Advance(config.WatchdogInitTime.Std())

	n.deliver(0, 0, 11, 1, rssi.Vector{rssi.Unmeasured(), rssi.Unmeasured(), rssi.Unmeasured()}, -35)
	n.clock.Advance(config.SlotOffset(1))
	n.deliver(2, 2, 11, 1, rssi.Vector{rssi.Reading(-60), rssi.Reading(-50), rssi.Unmeasured()}, -70)

	// the root's beacon is the only transmission
	require.Len(t, n.radio.sent, 1)

	n.clock.Advance(config.Dwell(RoleRoot))
	require.NotEmpty(t, n.frames.frames)

	f := n.frames.frames[0]
	assert.Equal(t, rssi.Vector{rssi.Reading(-35), rssi.Reading(-50), rssi.Reading(-70)}, f.RSSI)
	assert.False(t, f.TimedOut)
}

func TestNode_StampsSenderWithRadioRSSI(t *testing.T) {
	config := testConfig()
	n := startNode(t, config, 1, RoleRoot)
	n.clock.Advance(config.WatchdogInitTime.Std())

	n.radio.level = -63
	n.HandleReceive(encode(n.codec, &wire.Message{
		Sender:  2,
		Origin:  0,
		Channel: 11,
		Seq:     1,
		RSSI:    rssi.Vector{rssi.Reading(-51), rssi.Unmeasured(), rssi.Unmeasured()},
	}))

	status := n.Status()
	assert.Equal(t, rssi.Reading(-63), status.Vector[2])
	assert.Equal(t, rssi.Reading(-51), status.Vector[0])
}

func TestNode_RootDropsStale(t *testing.T) {
	config := testConfig()
	n := startNode(t, config, 1, RoleRoot)
	n.clock.Advance(config.WatchdogInitTime.Std())

	n.deliver(0, 0, 11, 7, rssi.NewVector(3), -35) // other epoch
	n.deliver(0, 0, 15, 1, rssi.NewVector(3), -35) // other channel
	n.HandleReceive([]byte{0x01, 0x02})            // garbage

	status := n.Status()
	assert.Equal(t, uint64(3), status.Stats.Dropped)
	assert.Equal(t, uint64(0), status.Stats.Received)
	assert.Equal(t, uint32(1), status.Epoch)
	assert.True(t, status.Vector[0].IsUnmeasured())
}

func TestNode_DuplicateForwardedOnce(t *testing.T) {
	config := testConfig()
	n := startNode(t, config, 0, RolePlain)
	n.clock.Advance(config.WatchdogInitTime.Std())
	require.Len(t, n.radio.sent, 1) // own beacon

	v := rssi.Vector{rssi.Unmeasured(), rssi.Unmeasured(), rssi.Unmeasured()}
	n.deliver(2, 2, 11, 1, v, -61)
	n.deliver(2, 2, 11, 1, v, -61)

	require.Len(t, n.radio.sent, 2)
	fwd := n.radio.messages()[1]
	assert.Equal(t, rssi.NodeID(0), fwd.Sender)
	assert.Equal(t, rssi.NodeID(2), fwd.Origin)
	assert.Equal(t, uint32(1), fwd.Seq)
	assert.Equal(t, rssi.Reading(-61), fwd.RSSI[2])

	stats := n.Status().Stats
	assert.Equal(t, uint64(1), stats.Forwarded)
	assert.Equal(t, uint64(2), stats.Received)

	// a copy relayed by another node is the same flood
	n.deliver(1, 2, 11, 1, v, -50)
	assert.Len(t, n.radio.sent, 2)
	assert.Equal(t, rssi.Reading(-50), n.Status().Vector[1])
}

func TestNode_EchoNotForwarded(t *testing.T) {
	config := testConfig()
	n := startNode(t, config, 0, RolePlain)
	n.clock.Advance(config.WatchdogInitTime.Std())

	// node 2 relays our own beacon back
	n.deliver(2, 0, 11, 1, rssi.Vector{rssi.Unmeasured(), rssi.Unmeasured(), rssi.Unmeasured()}, -61)

	assert.Len(t, n.radio.sent, 1)
	assert.Equal(t, rssi.Reading(-61), n.Status().Vector[2])
}

func TestNode_IdleEntersOnRootMessage(t *testing.T) {
	config := testConfig()
	n := startNode(t, config, 2, RolePlain)

	n.clock.Advance(100 * time.Millisecond)
	n.deliver(1, 1, 11, 1, rssi.NewVector(3), -48)

	status := n.Status()
	require.Equal(t, StateScanning, status.State)
	assert.Equal(t, uint32(1), status.Epoch)
	assert.Equal(t, rssi.Reading(-48), status.Vector[1])

	// the window is the root's: it opened one slot ago and lasts the root's dwell
	assert.Equal(t, n.clock.Now().Add(-config.SlotOffset(1)), status.Window.Opened)
	assert.Equal(t, config.Dwell(RoleRoot), status.Window.Dwell)

	// forwarded the root's flood
	require.Len(t, n.radio.sent, 1)
	assert.Equal(t, rssi.NodeID(1), n.radio.messages()[0].Origin)

	// own beacon one slot later
	n.clock.Advance(config.SlotOffset(1))
	require.Len(t, n.radio.sent, 2)
	assert.Equal(t, rssi.NodeID(2), n.radio.messages()[1].Origin)

	// the startup watchdog no longer restarts the schedule
	n.clock.Advance(config.WatchdogInitTime.Std())
	assert.Greater(t, n.Status().Epoch, uint32(1))
}

func TestNode_IgnoresRootOnOtherChannelWhileIdle(t *testing.T) {
	config := testConfig()
	n := startNode(t, config, 2, RolePlain)

	n.deliver(1, 1, 15, 1, rssi.NewVector(3), -48)

	assert.Equal(t, StateIdle, n.Status().State)
	assert.Empty(t, n.radio.sent)
}

func TestNode_AdoptsRootEpoch(t *testing.T) {
	config := testConfig()
	n := startNode(t, config, 0, RolePlain)
	n.clock.Advance(config.WatchdogInitTime.Std())
	n.deliver(2, 2, 11, 1, rssi.NewVector(3), -70)
	require.Equal(t, rssi.Reading(-70), n.Status().Vector[2])

	n.deliver(1, 1, 11, 9, rssi.NewVector(3), -40)

	status := n.Status()
	assert.Equal(t, uint32(9), status.Epoch)
	assert.Equal(t, uint32(9), status.Window.Epoch)
	assert.Equal(t, uint64(1), status.Stats.EpochsAdopted)
	assert.True(t, status.Vector[2].IsUnmeasured(), "store reset on adoption")
	assert.Equal(t, rssi.Reading(-40), status.Vector[1])

	// relayed copies of the root flood carry the root's epoch
	last := n.radio.messages()[len(n.radio.sent)-1]
	assert.Equal(t, uint32(9), last.Seq)
	assert.Equal(t, rssi.NodeID(1), last.Origin)
}

func TestNode_EarlyComplete(t *testing.T) {
	config := testConfig()
	config.EarlyComplete = true
	n := startNode(t, config, 1, RoleRoot)
	n.clock.Advance(config.WatchdogInitTime.Std())

	n.deliver(0, 0, 11, 1, rssi.NewVector(3), -35)
	require.Empty(t, n.frames.frames)

	n.deliver(2, 2, 11, 1, rssi.Vector{rssi.Unmeasured(), rssi.Reading(-44), rssi.Unmeasured()}, -70)
	require.Len(t, n.frames.frames, 1)
	assert.False(t, n.frames.frames[0].TimedOut)

	// the full dwell still applies, and the window ships only once
	require.Equal(t, uint8(11), n.Status().Window.Channel)
	n.clock.Advance(config.Dwell(RoleRoot))
	assert.Len(t, n.frames.frames, 1)
	assert.Equal(t, uint8(15), n.Status().Window.Channel)
}

func TestNode_FailureThresholdMarksInvalid(t *testing.T) {
	config := testConfig()
	n := startNode(t, config, 1, RoleRoot)
	n.clock.Advance(config.WatchdogInitTime.Std())

	dwell := config.Dwell(RoleRoot)
	for range 2 * len(config.Channels) {
		n.deliver(0, 0, n.Status().Window.Channel, n.Status().Epoch,
			rssi.Vector{rssi.Unmeasured(), rssi.Reading(-33), rssi.Unmeasured()}, -35)
		n.clock.Advance(dwell)
	}

	require.Len(t, n.frames.frames, 2*len(config.Channels))
	for _, f := range n.frames.frames {
		assert.True(t, f.RSSI[0].IsReading())
		assert.True(t, f.RSSI[1].IsReading())
		assert.True(t, f.RSSI[2].IsInvalid())
	}

	status := n.Status()
	assert.Equal(t, config.RfFailureThreshold, status.Failures[2])
	assert.Equal(t, uint8(0), status.Failures[0])
}

func TestNode_RadioFailuresAreNotFatal(t *testing.T) {
	config := testConfig()
	n := startNode(t, config, 0, RolePlain)
	n.radio.failSend = true
	n.radio.failTune = true

	n.clock.Advance(config.WatchdogInitTime.Std())
	n.deliver(2, 2, 11, 1, rssi.NewVector(3), -50)
	n.clock.Advance(config.Dwell(RolePlain))

	status := n.Status()
	assert.Equal(t, uint8(15), status.Window.Channel)
	// beacons on both channels and the forward
	assert.Equal(t, uint64(3), status.Stats.SendErrors)
	assert.Equal(t, uint64(0), status.Stats.Forwarded)
}

func TestNode_SinkErrorsAreNotFatal(t *testing.T) {
	config := testConfig()
	n := startNode(t, config, 1, RoleRoot)
	n.frames.err = errRadioDown

	n.clock.Advance(config.WatchdogInitTime.Std())
	n.clock.Advance(2 * config.Dwell(RoleRoot))

	stats := n.Status().Stats
	assert.Equal(t, uint64(2), stats.SinkErrors)
	assert.Equal(t, uint64(2), stats.FramesShipped)
}

func TestNode_StopCancelsTimers(t *testing.T) {
	config := testConfig()
	n := startNode(t, config, 1, RoleRoot)
	n.clock.Advance(config.WatchdogInitTime.Std())

	n.Stop()
	n.clock.Advance(time.Second)
	n.deliver(0, 0, 11, 1, rssi.NewVector(3), -35)

	assert.Empty(t, n.frames.frames)
	assert.Equal(t, StateIdle, n.Status().State)
	assert.Equal(t, uint64(0), n.Status().Stats.Received)
}
