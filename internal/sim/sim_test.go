package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/radiosense/internal/protocol"
	"github.com/roman-kulish/radiosense/internal/rssi"
)

const (
	testSlot      = 10 * time.Millisecond
	testTolerance = 20 * time.Millisecond
	testRootDwell = 3*testSlot + testTolerance
)

func testConfig(init time.Duration, windows int) Config {
	c := DefaultConfig()
	c.Protocol.NodeCount = 3
	c.Protocol.RootID = 1
	c.Protocol.Channels = []uint8{11, 15}
	c.Protocol.SlotTime = protocol.Duration(testSlot)
	c.Protocol.WatchdogInitTime = protocol.Duration(init)
	c.Protocol.RootTolerance = protocol.Duration(testTolerance)
	c.Protocol.RfFailureThreshold = 2
	c.Duration = protocol.Duration(init + time.Duration(windows)*testRootDwell + testRootDwell/2)
	return c
}

func run(t *testing.T, config Config) *Result {
	t.Helper()
	s, err := New(config)
	require.NoError(t, err)

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	return result
}

func TestSimulator_DeadNode(t *testing.T) {
	config := testConfig(time.Second, 4)
	config.Nodes = []Node{{ID: 2, Dead: true}}

	result := run(t, config)

	// two full epochs of two channels
	require.Len(t, result.Frames, 4)
	for i, f := range result.Frames {
		assert.Equal(t, uint32(i/2+1), f.Epoch)
		assert.Equal(t, config.Protocol.Channels[i%2], f.Channel)
		assert.Equal(t, rssi.NodeID(1), f.SenderID)
		assert.True(t, f.TimedOut)

		assert.True(t, f.RSSI[0].IsReading(), "frame %d: %s", i, f.RSSI)
		assert.True(t, f.RSSI[1].IsReading(), "frame %d: %s", i, f.RSSI)
		assert.True(t, f.RSSI[2].IsInvalid(), "frame %d: %s", i, f.RSSI)
	}

	root := result.Status[1]
	assert.Equal(t, uint8(2), root.Failures[2])
	assert.Equal(t, uint64(4), root.Stats.FramesShipped)
	assert.Equal(t, uint64(4), root.Stats.FramesTimedOut)
	assert.Zero(t, root.Stats.Forwarded)
	assert.Zero(t, result.Stats[2])
}

func TestSimulator_StartupSkew(t *testing.T) {
	// the root powers on 3s before the leaves, its first window opens at 5s
	config := testConfig(5*time.Second, 10)
	config.Nodes = []Node{
		{ID: 0, Boot: protocol.Duration(3 * time.Second)},
		{ID: 2, Boot: protocol.Duration(3 * time.Second)},
	}

	result := run(t, config)

	require.Len(t, result.Frames, 10)
	for i, f := range result.Frames {
		assert.False(t, f.TimedOut, "frame %d: %s", i, f.RSSI)
		assert.True(t, f.RSSI.Complete(), "frame %d: %s", i, f.RSSI)
		assert.Equal(t, uint32(i/2+1), f.Epoch)
	}

	// leaves followed the root from its first window, never on their own startup timer
	for _, id := range []int{0, 2} {
		assert.Equal(t, uint32(6), result.Status[id].Epoch)
		assert.Zero(t, result.Stats[id].EpochsAdopted)
	}
}

func TestSimulator_FloodsEachOriginOnce(t *testing.T) {
	config := testConfig(time.Second, 6)

	result := run(t, config)
	require.Len(t, result.Frames, 6)

	// a leaf forwards the root and the other leaf once per window, nothing more
	windows := uint64(len(result.Frames)) + 1
	for _, id := range []int{0, 2} {
		stats := result.Stats[id]
		assert.LessOrEqual(t, stats.Forwarded, 2*windows)
		assert.GreaterOrEqual(t, stats.Forwarded, 2*uint64(len(result.Frames)))
	}
	assert.Zero(t, result.Stats[1].Forwarded)
}

func TestSimulator_Deterministic(t *testing.T) {
	config := testConfig(time.Second, 20)
	config.Seed = 7
	config.Links = []Link{
		{From: 0, To: 1, RSSI: -45, Loss: 0.3},
		{From: 1, To: 0, RSSI: -47, Loss: 0.3},
		{From: 1, To: 2, RSSI: -80, Loss: 0.5},
		{From: 2, To: 1, RSSI: -82, Loss: 0.5},
		{From: 0, To: 2, RSSI: -70},
		{From: 2, To: 0, RSSI: -71},
	}

	first := run(t, config)
	second := run(t, config)

	require.Len(t, second.Frames, len(first.Frames))
	for i := range first.Frames {
		assert.Equal(t, first.Frames[i].RSSI.String(), second.Frames[i].RSSI.String())
		assert.Equal(t, first.Frames[i].Timestamp, second.Frames[i].Timestamp)
	}
	assert.Equal(t, first.Events, second.Events)

	// readings carry the level of the link they were heard on
	for _, f := range first.Frames {
		if dbm, ok := f.RSSI[2].DBm(); ok {
			assert.Contains(t, []int8{-71, -82}, dbm)
		}
	}
}

func TestSimulator_FrameSink(t *testing.T) {
	var shipped []*protocol.AggregatedFrame
	sink := sinkFunc(func(f *protocol.AggregatedFrame) error {
		shipped = append(shipped, f)
		return nil
	})

	s, err := New(testConfig(time.Second, 2), WithFrameSink(sink))
	require.NoError(t, err)

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, result.Frames, shipped)
}

func TestSimulator_Cancelled(t *testing.T) {
	config := testConfig(time.Second, 1000)

	s, err := New(config)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{name: "default", modify: func(*Config) {}},
		{name: "zero duration", modify: func(c *Config) { c.Duration = 0 }, wantErr: true},
		{name: "duration within startup", modify: func(c *Config) { c.Duration = c.Protocol.WatchdogInitTime }, wantErr: true},
		{name: "negative airtime", modify: func(c *Config) { c.Airtime = -1 }, wantErr: true},
		{name: "link outside fleet", modify: func(c *Config) { c.Links = []Link{{From: 0, To: 9}} }, wantErr: true},
		{name: "loop link", modify: func(c *Config) { c.Links = []Link{{From: 1, To: 1}} }, wantErr: true},
		{name: "positive rssi", modify: func(c *Config) { c.Links = []Link{{From: 0, To: 1, RSSI: 3}} }, wantErr: true},
		{name: "loss above one", modify: func(c *Config) { c.Links = []Link{{From: 0, To: 1, Loss: 2}} }, wantErr: true},
		{name: "dead root", modify: func(c *Config) { c.Nodes = []Node{{ID: 1, Dead: true}} }, wantErr: true},
		{name: "duplicate node", modify: func(c *Config) { c.Nodes = []Node{{ID: 0}, {ID: 0}} }, wantErr: true},
		{name: "invalid protocol", modify: func(c *Config) { c.Protocol.Channels = nil }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(&c)

			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type sinkFunc func(f *protocol.AggregatedFrame) error

func (fn sinkFunc) SendFrame(f *protocol.AggregatedFrame) error {
	return fn(f)
}
