package protocol

import (
	"fmt"
	"log/slog"
)

// role is the capability a node was dispatched into at startup
type role interface {
	Role() Role

	// forwards reports whether merged messages are retransmitted
	forwards() bool

	windowOpened(w Window)
	merged(n *Node, w Window)
	windowClosed(n *Node, w Window)
}

// dispatchRole composes the capability for a role. Collecting roles need a
// sink: the sink role must be given one, the root falls back to logging frames.
func dispatchRole(r Role, sink FrameSink, earlyComplete bool, logger *slog.Logger) (role, error) {
	switch r {
	case RolePlain:
		return relay{}, nil

	case RoleRoot:
		if sink == nil {
			sink = NewLogSink(logger)
		}
		return &collector{role: r, sink: sink, early: earlyComplete, logger: logger}, nil

	case RoleSink:
		if sink == nil {
			return nil, fmt.Errorf("role '%s' requires a frame sink", r)
		}
		return &collector{role: r, sink: sink, early: earlyComplete, logger: logger}, nil

	default:
		return nil, fmt.Errorf("unknown role '%s'", r)
	}
}

// relay merges and forwards
type relay struct{}

func (relay) Role() Role                 { return RolePlain }
func (relay) forwards() bool             { return true }
func (relay) windowOpened(Window)        {}
func (relay) merged(*Node, Window)       {}
func (relay) windowClosed(*Node, Window) {}

// collector merges without forwarding and ships exactly one frame per window
type collector struct {
	role    Role
	sink    FrameSink
	early   bool
	shipped bool
	logger  *slog.Logger
}

func (c *collector) Role() Role     { return c.role }
func (c *collector) forwards() bool { return false }

func (c *collector) windowOpened(Window) {
	c.shipped = false
}

func (c *collector) merged(n *Node, w Window) {
	if c.early && !c.shipped && n.store.IsComplete() {
		c.ship(n, w)
	}
}

func (c *collector) windowClosed(n *Node, w Window) {
	if !c.shipped {
		c.ship(n, w)
	}
}

func (c *collector) ship(n *Node, w Window) {
	c.shipped = true

	frame := n.aggregator.Package(w)
	n.stats.FramesShipped++
	if frame.TimedOut {
		n.stats.FramesTimedOut++
	}

	if err := c.sink.SendFrame(frame); err != nil {
		n.stats.SinkErrors++
		c.logger.Error(fmt.Sprintf("failed to hand frame to sink: %s", err.Error()),
			channelAttrs(w.Channel),
			slog.Uint64("epoch", uint64(w.Epoch)))
	}
}

// LogSink writes frames to a logger
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) SendFrame(f *AggregatedFrame) error {
	s.logger.Info("frame",
		channelAttrs(f.Channel),
		slog.Uint64("epoch", uint64(f.Epoch)),
		slog.Bool("timedOut", f.TimedOut),
		slog.String("rssi", f.RSSI.String()))
	return nil
}
