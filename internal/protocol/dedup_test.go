package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupSet(t *testing.T) {
	d := newDedupSet(2)
	a := floodKey{epoch: 1, channel: 11, origin: 0}
	b := floodKey{epoch: 1, channel: 11, origin: 1}
	c := floodKey{epoch: 1, channel: 11, origin: 2}

	assert.True(t, d.add(a))
	assert.False(t, d.add(a))
	assert.True(t, d.add(b))
	assert.Equal(t, 2, d.size())

	// full: the oldest key goes
	assert.True(t, d.add(c))
	assert.False(t, d.contains(a))
	assert.True(t, d.contains(b))
	assert.True(t, d.contains(c))
	assert.Equal(t, 2, d.size())

	d.clear()
	assert.Equal(t, 0, d.size())
	assert.True(t, d.add(a))
}

func TestDedupSet_DefaultCapacity(t *testing.T) {
	d := newDedupSet(0)
	assert.Equal(t, DefaultDedupCapacity, d.capacity)
}
