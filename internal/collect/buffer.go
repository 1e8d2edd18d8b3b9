package collect

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/roman-kulish/radiosense/internal/survey"
)

// EpochBuffer implements a thread-safe buffer for frames read from the host
// link. Sink frames carry no epoch, so the buffer numbers epochs itself: a
// frame whose channel does not come after the previous one in the scan order
// starts a new epoch.
type EpochBuffer struct {
	order map[uint8]int // channel -> scan position

	capacity   int // Maximum number of frames to store
	flushCount int // Number of frames to remove when buffer reaches capacity

	mu        sync.Mutex
	frames    []*survey.Frame
	epoch     uint32
	lastIndex int
	last      time.Time
}

// NewEpochBuffer creates a new frame buffer for the given channel scan order.
// The buffer will store up to capacity frames and remove flushCount frames when full.
//
// Parameters:
//   - channels: channel list of one epoch, in scan order
//   - capacity: maximum number of frames to store
//   - flushCount: number of frames to remove when buffer is full
//
// Returns an error if parameters are invalid.
func NewEpochBuffer(channels []uint8, capacity, flushCount int) (*EpochBuffer, error) {
	if capacity <= 0 || flushCount <= 0 || flushCount > capacity {
		return nil, fmt.Errorf("invalid buffer parameters: bufferCap=%d, toFlush=%d", capacity, flushCount)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("invalid channel list: empty")
	}

	order := make(map[uint8]int, len(channels))
	for i, ch := range channels {
		if _, ok := order[ch]; ok {
			return nil, fmt.Errorf("invalid channel list: channel %d is listed twice", ch)
		}
		order[ch] = i
	}

	return &EpochBuffer{
		order:      order,
		capacity:   capacity,
		flushCount: flushCount,
		lastIndex:  math.MaxInt,
	}, nil
}

// Insert numbers the frame epoch and appends it to the buffer. It keeps
// timestamps strictly increasing. Returns an error if the frame is nil or its
// channel is not in the scan order.
func (b *EpochBuffer) Insert(f *survey.Frame) error {
	if f == nil {
		return fmt.Errorf("cannot insert nil frame")
	}

	index, ok := b.order[f.Channel]
	if !ok {
		return fmt.Errorf("frame on channel %d is not in the scan order", f.Channel)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if index <= b.lastIndex {
		b.epoch++
	}
	b.lastIndex = index
	f.Epoch = b.epoch

	// Ensure temporal consistency
	if !f.Timestamp.After(b.last) && !b.last.IsZero() {
		f.Timestamp = b.last.Add(time.Microsecond)
	}
	b.last = f.Timestamp

	b.frames = append(b.frames, f)
	return nil
}

// Epoch returns the number of the epoch being filled
func (b *EpochBuffer) Epoch() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.epoch
}

// IsFull returns true if the buffer has reached its capacity.
func (b *EpochBuffer) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.frames) >= b.capacity
}

// Flush removes and returns the oldest frames from the buffer.
// Returns nil if the buffer is empty. The number of frames returned
// is determined by the flushCount parameter and buffer state.
func (b *EpochBuffer) Flush() []*survey.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) == 0 {
		return nil
	}

	count := b.flushCount
	if len(b.frames) > b.capacity {
		count += len(b.frames) - b.capacity
	}
	count = min(count, len(b.frames)) // Ensure we don't exceed available items

	results := make([]*survey.Frame, count)
	copy(results, b.frames)

	b.frames = append(b.frames[:0], b.frames[count:]...)
	return results
}

// DrainAll removes and returns all frames from the buffer.
// Returns nil if the buffer is empty.
func (b *EpochBuffer) DrainAll() []*survey.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.frames) == 0 {
		return nil
	}

	results := b.frames
	b.frames = nil
	return results
}

// Size returns the current number of frames in the buffer.
func (b *EpochBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Clear removes all frames from the buffer. Epoch numbering carries on.
func (b *EpochBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = nil
}
