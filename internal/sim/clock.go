package sim

import (
	"container/heap"
	"time"

	"github.com/roman-kulish/radiosense/internal/protocol"
)

// event is a callback due at a point of simulated time. Events due at the
// same time run in the order they were scheduled.
type event struct {
	at        time.Time
	seq       uint64
	f         func()
	cancelled bool
}

func (e *event) Stop() bool {
	if e.cancelled || e.f == nil {
		return false
	}
	e.cancelled = true
	return true
}

type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(*event)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

// scheduler is the discrete event clock shared by every simulated node
type scheduler struct {
	now   time.Time
	seq   uint64
	queue eventQueue
}

func newScheduler(start time.Time) *scheduler {
	return &scheduler{now: start}
}

func (s *scheduler) Now() time.Time {
	return s.now
}

func (s *scheduler) AfterFunc(d time.Duration, f func()) protocol.Timer {
	return s.at(s.now.Add(max(d, 0)), f)
}

func (s *scheduler) at(t time.Time, f func()) *event {
	s.seq++
	e := &event{at: t, seq: s.seq, f: f}
	heap.Push(&s.queue, e)
	return e
}

// step runs the next event due no later than until. It reports false when
// there is none.
func (s *scheduler) step(until time.Time) bool {
	for s.queue.Len() > 0 {
		if s.queue[0].at.After(until) {
			return false
		}

		e := heap.Pop(&s.queue).(*event)
		if e.cancelled {
			continue
		}

		s.now = e.at
		f := e.f
		e.f = nil
		f()
		return true
	}
	return false
}
