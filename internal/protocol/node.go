package protocol

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/radiosense/internal/rssi"
	"github.com/roman-kulish/radiosense/internal/wire"
)

// Radio is the transceiver driver as seen by the protocol. Received messages
// are delivered by the driver's owner through Node.HandleReceive, and ReadRSSI
// reports the signal strength of the message being delivered.
type Radio interface {
	Send(data []byte) error
	SetChannel(ch uint8) error
	ReadRSSI() int8
}

// Stats counts protocol activity of a node
type Stats struct {
	BeaconsSent    uint64
	Received       uint64
	Forwarded      uint64
	Dropped        uint64
	SendErrors     uint64
	FramesShipped  uint64
	FramesTimedOut uint64
	SinkErrors     uint64
	EpochsAdopted  uint64
}

// Status is a point-in-time view of a node
type Status struct {
	ID       rssi.NodeID
	Role     Role
	State    State
	Epoch    uint32
	Window   Window
	Misses   uint32
	Failures []uint8
	Vector   rssi.Vector
	Stats    Stats
}

// WithLogger sets the logger for the node
func WithLogger(logger *slog.Logger) func(*Node) {
	return func(n *Node) {
		n.logger = logger
	}
}

// WithFrameSink sets where a collecting node hands its frames
func WithFrameSink(sink FrameSink) func(*Node) {
	return func(n *Node) {
		n.sink = sink
	}
}

// Node is the protocol state machine of one radio node. It owns no goroutines
// and takes no locks: Start, Stop, HandleReceive and every Clock callback must
// be called from a single event loop.
type Node struct {
	id     rssi.NodeID
	config Config
	clock  Clock
	radio  Radio
	codec  *wire.Codec
	sink   FrameSink
	logger *slog.Logger

	role       role
	store      *Store
	watchdog   *Watchdog
	scheduler  *Scheduler
	aggregator *Aggregator

	beacon     oneShot
	beaconSent bool
	anchored   bool
	running    bool

	stats Stats
}

// NewNode validates the configuration and dispatches the node into its role
func NewNode(config Config, id rssi.NodeID, r Role, clock Clock, radio Radio, options ...func(*Node)) (*Node, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := config.ValidateRole(id, r); err != nil {
		return nil, fmt.Errorf("invalid role: %w", err)
	}

	codec, err := wire.NewCodec(config.NodeCount, config.Sentinels)
	if err != nil {
		return nil, fmt.Errorf("creating codec: %w", err)
	}

	n := Node{
		id:     id,
		config: config,
		clock:  clock,
		radio:  radio,
		codec:  codec,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		beacon: oneShot{clock: clock},
	}

	for _, option := range options {
		option(&n)
	}

	n.logger = n.logger.With(slog.Int("node", int(id)), slog.String("role", string(r)))

	if n.role, err = dispatchRole(r, n.sink, config.EarlyComplete, n.logger); err != nil {
		return nil, err
	}

	n.watchdog = NewWatchdog(clock, config.NodeCount, config.RfFailureThreshold, config.GraceTime(), n.windowExpired)
	n.store = NewStore(config.NodeCount, n.watchdog)
	n.scheduler = NewScheduler(config.Channels, config.Dwell(r), radio, n.store, n.watchdog, n.logger)
	n.aggregator = newAggregator(id, n.store, config.DedupCapacity, codec, radio, clock, &n.stats, n.logger)

	return &n, nil
}

// Start tunes the radio to the first channel and arms the startup watchdog.
// The node listens from now on; the first window opens when the watchdog fires
// or when a message from the root arrives, whichever comes first.
func (n *Node) Start() {
	if n.running {
		return
	}
	n.running = true

	ch := n.scheduler.FirstChannel()
	if err := n.radio.SetChannel(ch); err != nil {
		n.logger.Warn(fmt.Sprintf("failed to tune radio: %s", err.Error()), channelAttrs(ch))
	}

	n.logger.Info("node started",
		slog.Duration("initTime", n.config.WatchdogInitTime.Std()),
		slog.Duration("dwell", n.config.Dwell(n.role.Role())),
		channelAttrs(ch))

	n.watchdog.ArmInit(n.config.WatchdogInitTime.Std(), func() {
		if n.scheduler.State() == StateIdle {
			n.enterWindow(0, n.clock.Now())
		}
	})
}

// Stop cancels every pending timer and returns to Idle
func (n *Node) Stop() {
	if !n.running {
		return
	}
	n.running = false

	n.beacon.stop()
	n.scheduler.Stop()
	n.logger.Info("node stopped", slog.Uint64("epoch", uint64(n.scheduler.Epoch())))
}

// HandleReceive processes raw bytes received by the radio. The sender is
// stamped with the RSSI the radio reports at receipt.
func (n *Node) HandleReceive(data []byte) {
	if !n.running {
		return
	}

	m, err := n.codec.DecodeMessage(data)
	if err != nil {
		n.stats.Dropped++
		n.logger.Debug(fmt.Sprintf("dropping message: %s", err.Error()))
		return
	}

	n.handleMessage(m, n.radio.ReadRSSI())
}

func (n *Node) handleMessage(m *wire.Message, measured int8) {
	if m.Sender == n.id {
		n.stats.Dropped++
		return
	}

	fromRoot := m.Origin == n.config.RootID && !n.role.Role().Collects()
	if fromRoot {
		n.followRoot(m)
	}

	if n.scheduler.State() != StateScanning {
		n.stats.Dropped++
		return
	}

	w := n.scheduler.Window()
	if m.Seq != w.Epoch || m.Channel != w.Channel {
		n.stats.Dropped++
		n.logger.Debug("dropping stale message",
			slog.Int("sender", int(m.Sender)),
			slog.Int("origin", int(m.Origin)),
			slog.Uint64("seq", uint64(m.Seq)),
			slog.Uint64("epoch", uint64(w.Epoch)),
			slog.Int("channel", int(m.Channel)))
		return
	}

	// follow the root's window once per window, so a relay never leaves a
	// channel before the root does
	if fromRoot && !n.anchored {
		n.anchored = true
		w = n.scheduler.Reanchor(n.rootAnchor(), n.config.Dwell(RoleRoot))
		if !n.beaconSent {
			n.armBeacon(w)
		}
	}

	outcome := n.aggregator.Receive(m, measured, w, n.role.forwards())
	n.watchdog.Extend()
	n.role.merged(n, w)

	n.logger.Debug("message",
		slog.Int("sender", int(m.Sender)),
		slog.Int("origin", int(m.Origin)),
		slog.Int("rssi", int(measured)),
		slog.String("outcome", outcome.String()))
}

// followRoot aligns a non-root node with a message originated by the root:
// an idle node opens its first window, a node on another epoch adopts the root's.
func (n *Node) followRoot(m *wire.Message) {
	if n.scheduler.State() == StateIdle {
		if m.Channel != n.scheduler.FirstChannel() {
			return
		}
		n.enterWindow(0, n.rootAnchor())
	}

	if m.Seq != n.scheduler.Epoch() {
		n.logger.Info("adopting root epoch",
			slog.Uint64("from", uint64(n.scheduler.Epoch())),
			slog.Uint64("to", uint64(m.Seq)))

		n.scheduler.AdoptEpoch(m.Seq)
		n.aggregator.Open()
		n.stats.EpochsAdopted++
	}
}

// rootAnchor estimates when the root opened its window, given that a message
// it originated is being received now
func (n *Node) rootAnchor() time.Time {
	return n.clock.Now().Add(-n.config.SlotOffset(n.config.RootID))
}

func (n *Node) enterWindow(i int, anchor time.Time) {
	w := n.scheduler.Enter(i, anchor)
	n.aggregator.Open()
	n.role.windowOpened(w)
	n.anchored = false
	n.beaconSent = false
	n.armBeacon(w)

	n.logger.Debug("window opened",
		slog.Int("index", w.Index),
		channelAttrs(w.Channel),
		slog.Uint64("epoch", uint64(w.Epoch)),
		slog.Duration("dwell", w.Dwell))
}

func (n *Node) armBeacon(w Window) {
	at := w.Opened.Add(n.config.SlotOffset(n.id))
	n.beacon.arm(at.Sub(n.clock.Now()), func() {
		n.beaconSent = true
		n.aggregator.Beacon(n.scheduler.Window())
	})
}

// windowExpired closes the current window and opens the next one
func (n *Node) windowExpired() {
	w := n.scheduler.Window()
	n.role.windowClosed(n, w)

	if invalidated := n.watchdog.CloseWindow(n.store); len(invalidated) > 0 {
		n.logger.Info("nodes marked unreachable",
			slog.Any("nodes", invalidated),
			slog.Uint64("epoch", uint64(w.Epoch)))
	}

	next, wraps := n.scheduler.Next()
	if wraps {
		v := n.store.Snapshot()
		n.logger.Info("epoch complete",
			slog.Uint64("epoch", uint64(w.Epoch)),
			slog.Int("readings", v.Count(rssi.KindReading)),
			slog.Int("invalid", v.Count(rssi.KindInvalid)),
			slog.Uint64("misses", uint64(n.watchdog.Misses())))
	}

	n.enterWindow(next, n.clock.Now())
}

// ID returns the node identifier
func (n *Node) ID() rssi.NodeID {
	return n.id
}

// Role returns the role the node was dispatched into
func (n *Node) Role() Role {
	return n.role.Role()
}

// Status returns a snapshot of the node state
func (n *Node) Status() Status {
	failures := make([]uint8, n.config.NodeCount)
	for i := range failures {
		failures[i] = n.watchdog.Failures(rssi.NodeID(i))
	}

	return Status{
		ID:       n.id,
		Role:     n.role.Role(),
		State:    n.scheduler.State(),
		Epoch:    n.scheduler.Epoch(),
		Window:   n.scheduler.Window(),
		Misses:   n.watchdog.Misses(),
		Failures: failures,
		Vector:   n.store.Snapshot(),
		Stats:    n.stats,
	}
}
