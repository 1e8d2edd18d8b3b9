package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/radiosense/internal/protocol"
	"github.com/roman-kulish/radiosense/internal/radio"
	"github.com/roman-kulish/radiosense/internal/rssi"
	"github.com/roman-kulish/radiosense/internal/telemetry"
)

const (
	eventQueueSize = 64

	// how long Get waits for the event loop
	telemetryTimeout = 250 * time.Millisecond
)

var ErrNotRunning = errors.New("node is not running")

// Transceiver is a radio driver that delivers received frames through a callback
type Transceiver interface {
	protocol.Radio
	Listen(ctx context.Context, fn radio.ReceiveFunc) (<-chan error, error)
	Close() error
}

// WithLogger sets the logger for the runtime and the protocol node
func WithLogger(logger *slog.Logger) func(*Runtime) {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithFrameSink sets the sink of a collecting node
func WithFrameSink(sink protocol.FrameSink) func(*Runtime) {
	return func(r *Runtime) {
		r.sink = sink
	}
}

// Runtime runs a protocol node on a single event loop goroutine. Radio
// receptions and timer expiries are posted to the loop, so the node never sees
// two events at once.
type Runtime struct {
	node     *protocol.Node
	radio    Transceiver
	received *loopRadio
	sink     protocol.FrameSink

	events    chan func()
	done      chan struct{}
	isRunning atomic.Bool

	logger *slog.Logger
}

// New creates the runtime and the protocol node it drives
func New(config protocol.Config, id rssi.NodeID, role protocol.Role, tr Transceiver, options ...func(*Runtime)) (*Runtime, error) {
	r := Runtime{
		radio:    tr,
		received: &loopRadio{Transceiver: tr},
		events: make(chan func(), eventQueueSize),
		done:   make(chan struct{}),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&r)
	}

	nodeOptions := []func(*protocol.Node){protocol.WithLogger(r.logger)}
	if r.sink != nil {
		nodeOptions = append(nodeOptions, protocol.WithFrameSink(r.sink))
	}

	n, err := protocol.NewNode(config, id, role, loopClock{post: r.post}, r.received, nodeOptions...)
	if err != nil {
		return nil, fmt.Errorf("creating node: %w", err)
	}
	r.node = n

	return &r, nil
}

// Run starts the node and processes events until the context is cancelled or
// the radio fails
func (r *Runtime) Run(ctx context.Context) error {
	select {
	case <-r.done:
		return fmt.Errorf("node has already finished")
	default:
	}

	if !r.isRunning.CompareAndSwap(false, true) {
		return fmt.Errorf("node is already running")
	}
	finish := sync.OnceFunc(func() { close(r.done) })
	defer finish()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopped, err := r.radio.Listen(ctx, func(data []byte, measured int8) {
		r.post(func() {
			r.received.level = measured
			r.node.HandleReceive(data)
		})
	})
	if err != nil {
		r.isRunning.Store(false)
		return fmt.Errorf("starting radio: %w", err)
	}

	r.node.Start()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case err, ok := <-stopped:
			if ok && err != nil {
				runErr = fmt.Errorf("radio stopped: %w", err)
			}
			break loop

		case f := <-r.events:
			f()
		}
	}

	r.node.Stop()
	r.isRunning.Store(false)

	// receive callbacks blocked in post return once done is closed, so the
	// radio can wait for its reader
	finish()

	if err = r.radio.Close(); err != nil {
		r.logger.Error(err.Error())
	}

	return runErr
}

// Status returns a snapshot of the node, taken on the event loop
func (r *Runtime) Status(ctx context.Context) (protocol.Status, error) {
	if !r.isRunning.Load() {
		return r.node.Status(), nil
	}

	result := make(chan protocol.Status, 1)
	if !r.post(func() { result <- r.node.Status() }) {
		return protocol.Status{}, ErrNotRunning
	}

	select {
	case s := <-result:
		return s, nil
	case <-r.done:
		return protocol.Status{}, ErrNotRunning
	case <-ctx.Done():
		return protocol.Status{}, ctx.Err()
	}
}

// Get implements telemetry.Provider. It returns nil when the event loop does
// not answer in time.
func (r *Runtime) Get() *telemetry.Telemetry {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryTimeout)
	defer cancel()

	status, err := r.Status(ctx)
	if err != nil {
		r.logger.Debug(fmt.Sprintf("telemetry unavailable: %s", err.Error()))
		return nil
	}
	return telemetry.FromStatus(time.Now(), status)
}

// ID returns the node identifier
func (r *Runtime) ID() rssi.NodeID {
	return r.node.ID()
}

// Role returns the node role
func (r *Runtime) Role() protocol.Role {
	return r.node.Role()
}

// post queues f on the event loop. Events posted after the loop exited are dropped.
func (r *Runtime) post(f func()) bool {
	select {
	case r.events <- f:
		return true
	case <-r.done:
		return false
	}
}
