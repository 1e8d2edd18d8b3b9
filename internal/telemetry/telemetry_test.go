package telemetry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/radiosense/internal/protocol"
	"github.com/roman-kulish/radiosense/internal/rssi"
)

func TestFromStatus(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("AEST", 10*60*60))
	status := protocol.Status{
		ID:       2,
		Role:     protocol.RolePlain,
		State:    protocol.StateScanning,
		Epoch:    7,
		Window:   protocol.Window{Channel: 15},
		Misses:   1,
		Failures: []uint8{0, 0, 2},
		Vector:   rssi.Vector{rssi.Reading(-40), rssi.Unmeasured(), rssi.Invalid()},
		Stats:    protocol.Stats{BeaconsSent: 3, Forwarded: 5},
	}

	tm := FromStatus(ts, status)

	assert.Equal(t, time.UTC, tm.Timestamp.Location())
	assert.Equal(t, uint8(2), tm.NodeID)
	assert.Equal(t, "plain", tm.Role)
	assert.Equal(t, "scanning", tm.State)
	assert.Equal(t, uint8(15), tm.Channel)
	assert.Equal(t, "2.425 GHz", tm.Frequency)
	assert.Equal(t, uint64(5), tm.Counters.Forwarded)

	require.Len(t, tm.RSSI, 3)
	require.NotNil(t, tm.RSSI[0])
	assert.Equal(t, int8(-40), *tm.RSSI[0])
	assert.Nil(t, tm.RSSI[1])
	assert.Nil(t, tm.RSSI[2])

	data, err := json.Marshal(tm)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"rssi":[-40,null,null]`)
	assert.NotContains(t, string(data), "framesShipped")
}

func TestFromStatus_Idle(t *testing.T) {
	tm := FromStatus(time.Now(), protocol.Status{State: protocol.StateIdle, Window: protocol.Window{Channel: 11}})

	assert.Equal(t, "idle", tm.State)
	assert.Zero(t, tm.Channel)
	assert.Empty(t, tm.Frequency)
}
