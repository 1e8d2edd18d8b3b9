package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/radiosense/internal/telemetry"
)

type staticProvider struct {
	t *telemetry.Telemetry
}

func (p staticProvider) Get() *telemetry.Telemetry {
	return p.t
}

func TestStatus(t *testing.T) {
	want := &telemetry.Telemetry{
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		NodeID:    2,
		Role:      "plain",
		State:     "scanning",
		Epoch:     7,
		Channel:   15,
		Frequency: "2.425 GHz",
		Failures:  []uint8{0, 0, 0},
		Counters:  telemetry.Counters{BeaconsSent: 28, Received: 50},
	}

	r := chi.NewRouter()
	NewStatus(staticProvider{t: want}).RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got telemetry.Telemetry
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, uint8(2), got.NodeID)
	assert.Equal(t, uint32(7), got.Epoch)
	assert.Equal(t, "2.425 GHz", got.Frequency)
	assert.Equal(t, uint64(28), got.Counters.BeaconsSent)
}

func TestStatus_NotRunning(t *testing.T) {
	r := chi.NewRouter()
	NewStatus(staticProvider{}).RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
