package app

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigFromCLI(t *testing.T) {
	config, err := NewConfigFromCLI([]string{
		"-db", "survey.db", "-s", "3", "-o", "out", "-f", "JPEG",
		"-theme", "thermal", "-tz", "UTC", "-min-rssi", "-90",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "survey.db", config.DBPath)
	assert.Equal(t, int64(3), config.SessionID)
	assert.Equal(t, "out.jpeg", config.OutputFile)
	assert.Equal(t, ImageJPEG, config.Format)
	assert.Equal(t, ThermalTheme, config.Theme)
	assert.Equal(t, "UTC", config.TimeZone.String())
	require.NotNil(t, config.MinRSSI)
	assert.Equal(t, -90.0, *config.MinRSSI)
	assert.Nil(t, config.MaxRSSI)
	assert.Equal(t, defaultCellSize, config.CellSize)
}

func TestNewConfigFromCLI_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no db", []string{"-o", "out"}},
		{"no output", []string{"-db", "survey.db"}},
		{"bad session", []string{"-db", "survey.db", "-o", "out", "-s", "0"}},
		{"bad format", []string{"-db", "survey.db", "-o", "out", "-f", "gif"}},
		{"bad theme", []string{"-db", "survey.db", "-o", "out", "-theme", "rainbow"}},
		{"bad zone", []string{"-db", "survey.db", "-o", "out", "-tz", "Mars/Olympus"}},
		{"small cell", []string{"-db", "survey.db", "-o", "out", "-cell", "4"}},
		{"inverted range", []string{"-db", "survey.db", "-o", "out", "-min-rssi", "-40", "-max-rssi", "-80"}},
		{"unknown flag", []string{"-db", "survey.db", "-o", "out", "-x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfigFromCLI(tt.args, io.Discard)
			assert.Error(t, err)
		})
	}
}
