package protocol

import "github.com/roman-kulish/radiosense/internal/rssi"

// floodKey identifies one flood: the beacon of origin for a channel in an epoch
type floodKey struct {
	epoch   uint32
	channel uint8
	origin  rssi.NodeID
}

// dedupSet is a fixed-capacity set of floods already forwarded. When full, the
// oldest key is evicted. It is cleared on every channel advance, so in practice
// it holds at most one key per origin.
type dedupSet struct {
	capacity int
	keys     map[floodKey]struct{}
	order    []floodKey
	head     int
}

func newDedupSet(capacity int) *dedupSet {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &dedupSet{
		capacity: capacity,
		keys:     make(map[floodKey]struct{}, capacity),
		order:    make([]floodKey, 0, capacity),
	}
}

// add records the key and reports whether it was new
func (d *dedupSet) add(k floodKey) bool {
	if _, ok := d.keys[k]; ok {
		return false
	}

	if len(d.order) < d.capacity {
		d.order = append(d.order, k)
	} else {
		delete(d.keys, d.order[d.head])
		d.order[d.head] = k
		d.head = (d.head + 1) % d.capacity
	}
	d.keys[k] = struct{}{}
	return true
}

func (d *dedupSet) contains(k floodKey) bool {
	_, ok := d.keys[k]
	return ok
}

func (d *dedupSet) clear() {
	clear(d.keys)
	d.order = d.order[:0]
	d.head = 0
}

func (d *dedupSet) size() int {
	return len(d.keys)
}
