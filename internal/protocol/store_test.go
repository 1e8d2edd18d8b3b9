package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/radiosense/internal/rssi"
)

func TestStore_FirstReadingWins(t *testing.T) {
	s := NewStore(3, nil)

	require.True(t, s.Write(0, rssi.Reading(-40)))
	require.False(t, s.Write(0, rssi.Reading(-90)))
	require.False(t, s.Write(0, rssi.Unmeasured()))
	require.False(t, s.Write(0, rssi.Invalid()))

	dbm, ok := s.Read(0).DBm()
	require.True(t, ok)
	assert.Equal(t, int8(-40), dbm)
}

func TestStore_Write(t *testing.T) {
	tests := []struct {
		name    string
		current rssi.Sample
		value   rssi.Sample
		gate    staticGate
		want    bool
		result  rssi.Sample
	}{
		{"reading into unmeasured", rssi.Unmeasured(), rssi.Reading(-50), nil, true, rssi.Reading(-50)},
		{"reading into reading", rssi.Reading(-50), rssi.Reading(-20), nil, false, rssi.Reading(-50)},
		{"reading into invalid", rssi.Invalid(), rssi.Reading(-20), staticGate{0: true}, false, rssi.Invalid()},
		{"invalid below threshold", rssi.Unmeasured(), rssi.Invalid(), staticGate{}, false, rssi.Unmeasured()},
		{"invalid at threshold", rssi.Unmeasured(), rssi.Invalid(), staticGate{0: true}, true, rssi.Invalid()},
		{"invalid overrides reading at threshold", rssi.Reading(-50), rssi.Invalid(), staticGate{0: true}, true, rssi.Invalid()},
		{"invalid twice", rssi.Invalid(), rssi.Invalid(), staticGate{0: true}, false, rssi.Invalid()},
		{"unmeasured never written", rssi.Reading(-50), rssi.Unmeasured(), staticGate{0: true}, false, rssi.Reading(-50)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(1, tt.gate)
			s.samples[0] = tt.current

			assert.Equal(t, tt.want, s.Write(0, tt.value))
			assert.Equal(t, tt.result, s.Read(0))
		})
	}
}

func TestStore_OutOfRange(t *testing.T) {
	s := NewStore(2, staticGate{5: true})

	assert.False(t, s.Write(5, rssi.Reading(-10)))
	assert.False(t, s.Write(5, rssi.Invalid()))
	assert.True(t, s.Read(5).IsUnmeasured())
}

func TestStore_IsCompleteAndReset(t *testing.T) {
	s := NewStore(2, staticGate{1: true})
	require.False(t, s.IsComplete())

	s.Write(0, rssi.Reading(-30))
	require.False(t, s.IsComplete())

	s.Write(1, rssi.Invalid())
	require.True(t, s.IsComplete())

	s.Reset()
	require.False(t, s.IsComplete())
	assert.Equal(t, 2, s.Snapshot().Count(rssi.KindUnmeasured))
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	s := NewStore(2, nil)
	snap := s.Snapshot()

	s.Write(0, rssi.Reading(-30))
	assert.True(t, snap[0].IsUnmeasured())

	snap[1] = rssi.Reading(-1)
	assert.True(t, s.Read(1).IsUnmeasured())
}

func TestStore_MergeIdempotent(t *testing.T) {
	incoming := rssi.Vector{rssi.Reading(-40), rssi.Unmeasured(), rssi.Reading(-70), rssi.Invalid()}

	once := NewStore(4, nil)
	once.Write(1, rssi.Reading(-10))
	require.Equal(t, 2, once.Merge(incoming))

	twice := NewStore(4, nil)
	twice.Write(1, rssi.Reading(-10))
	twice.Merge(incoming)
	require.Equal(t, 0, twice.Merge(incoming))

	assert.Equal(t, once.Snapshot(), twice.Snapshot())
}

func TestStore_MergeCommutative(t *testing.T) {
	a := rssi.Vector{rssi.Reading(-40), rssi.Unmeasured(), rssi.Reading(-70), rssi.Unmeasured()}
	b := rssi.Vector{rssi.Unmeasured(), rssi.Reading(-55), rssi.Unmeasured(), rssi.Invalid()}

	ab := NewStore(4, nil)
	ab.Merge(a)
	ab.Merge(b)

	ba := NewStore(4, nil)
	ba.Merge(b)
	ba.Merge(a)

	assert.Equal(t, ab.Snapshot(), ba.Snapshot())
	assert.True(t, ab.Read(3).IsUnmeasured(), "merge never propagates invalid")
}

func TestStore_MergeNeverClobbers(t *testing.T) {
	s := NewStore(2, nil)
	s.Write(0, rssi.Reading(-30))

	s.Merge(rssi.Vector{rssi.Reading(-99), rssi.Reading(-20), rssi.Reading(-1)})

	assert.Equal(t, rssi.Vector{rssi.Reading(-30), rssi.Reading(-20)}, s.Snapshot())
}
