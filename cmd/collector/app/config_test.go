package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
settings:
  logLevel: debug
protocol:
  nodeCount: 5
  rootId: 0
  channels: [11, 26]
  slotTime: 20ms
source:
  path: /dev/ttyACM0
storage:
  dataDirectory: /var/lib/radiosense
api:
  listen: ":8080"
`), 0o600))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", config.Settings.LogLevel)
	assert.Equal(t, 5, config.Protocol.NodeCount)
	assert.Equal(t, []uint8{11, 26}, config.Protocol.Channels)
	assert.Equal(t, 20*time.Millisecond, config.Protocol.SlotTime.Std())
	assert.Equal(t, 5*time.Second, config.Protocol.WatchdogInitTime.Std()) // default kept
	assert.Equal(t, "/dev/ttyACM0", config.Source.Path)
	assert.Equal(t, maxBatchSize, config.Storage.MaxBatchSize)
	assert.Equal(t, ":8080", config.API.Listen)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{"no source", `protocol: {nodeCount: 3}`},
		{"two sources", "source: {path: '-', command: sink}"},
		{"bad protocol", "source: {path: '-'}\nprotocol: {nodeCount: 0}"},
		{"bad flush", "source: {path: '-'}\nstorage: {bufferCapacity: 4, flushCount: 8}"},
		{"bad duration", "source: {path: '-'}\nprotocol: {slotTime: soon}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseConfig([]byte(tt.config))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
