package sim

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/roman-kulish/radiosense/internal/protocol"
	"github.com/roman-kulish/radiosense/internal/radio"
	"github.com/roman-kulish/radiosense/internal/rssi"
)

// checked for cancellation every this many events
const ctxCheckInterval = 1024

// Start is the simulated wall clock time at which every run begins
var Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Result is the outcome of a simulation run
type Result struct {
	Frames  []*protocol.AggregatedFrame
	Stats   []protocol.Stats // by node ID, zero for dead nodes
	Status  []protocol.Status
	Events  uint64
	Elapsed time.Duration
}

// WithLogger sets the logger for the simulator and its nodes
func WithLogger(logger *slog.Logger) func(*Simulator) {
	return func(s *Simulator) {
		s.logger = logger
	}
}

// WithFrameSink hands every frame the root ships to sink as well
func WithFrameSink(sink protocol.FrameSink) func(*Simulator) {
	return func(s *Simulator) {
		s.sink = sink
	}
}

// Simulator runs a whole fleet of protocol nodes in simulated time. It is
// deterministic: the same configuration and seed produce the same frames.
type Simulator struct {
	config Config
	clock  *scheduler
	rnd    *rand.Rand
	links  map[rssi.NodeID][]Link

	nodes  []*simNode
	frames []*protocol.AggregatedFrame
	sink   protocol.FrameSink

	logger *slog.Logger
}

// New builds the fleet. Nodes power on when Run is called.
func New(config Config, options ...func(*Simulator)) (*Simulator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := Simulator{
		config: config,
		clock:  newScheduler(Start),
		rnd:    rand.New(rand.NewPCG(config.Seed, 0x5eed)),
		links:  config.links(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&s)
	}

	s.nodes = make([]*simNode, config.Protocol.NodeCount)
	for i := range s.nodes {
		id := rssi.NodeID(i)
		nc := config.node(id)

		sn := simNode{id: id, conf: nc, sim: &s}
		s.nodes[i] = &sn
		if nc.Dead {
			continue
		}

		role := protocol.RolePlain
		options := []func(*protocol.Node){protocol.WithLogger(s.logger)}
		if id == config.Protocol.RootID {
			role = protocol.RoleRoot
			options = append(options, protocol.WithFrameSink(frameCollector{&s}))
		}

		node, err := protocol.NewNode(config.Protocol, id, role, s.clock, &sn, options...)
		if err != nil {
			return nil, fmt.Errorf("creating node %d: %w", id, err)
		}
		sn.node = node
	}

	return &s, nil
}

// Run powers the fleet on and advances simulated time until the configured
// duration has elapsed or ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	for _, sn := range s.nodes {
		if sn.node == nil {
			s.logger.Info("node is dead", slog.Int("node", int(sn.id)))
			continue
		}
		s.clock.at(Start.Add(sn.conf.Boot.Std()), sn.node.Start)
	}

	end := Start.Add(s.config.Duration.Std())
	var events uint64
	for s.clock.step(end) {
		events++
		if events%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("simulation interrupted at %s: %w", s.clock.Now().Sub(Start), err)
			}
		}
	}

	for _, sn := range s.nodes {
		if sn.node != nil {
			sn.node.Stop()
		}
	}

	result := Result{
		Frames:  s.frames,
		Stats:   make([]protocol.Stats, len(s.nodes)),
		Status:  make([]protocol.Status, len(s.nodes)),
		Events:  events,
		Elapsed: end.Sub(Start),
	}
	for i, sn := range s.nodes {
		if sn.node == nil {
			result.Status[i] = protocol.Status{ID: sn.id}
			continue
		}
		result.Status[i] = sn.node.Status()
		result.Stats[i] = result.Status[i].Stats
	}

	s.logger.Info("simulation complete",
		slog.Uint64("events", events),
		slog.Int("frames", len(s.frames)),
		slog.Duration("elapsed", result.Elapsed))

	return &result, nil
}

// transmit delivers data to every node that hears from, after the airtime
func (s *Simulator) transmit(from rssi.NodeID, channel uint8, data []byte) {
	for _, l := range s.links[from] {
		to := s.nodes[l.To]
		if to.node == nil {
			continue
		}
		if l.Loss > 0 && s.rnd.Float64() < l.Loss {
			continue
		}

		level := l.RSSI
		if level == 0 {
			level = radio.DefaultLinkRSSI
		}

		payload := make([]byte, len(data))
		copy(payload, data)
		s.clock.at(s.clock.Now().Add(s.config.Airtime.Std()), func() {
			to.receive(channel, payload, level)
		})
	}
}

type frameCollector struct {
	sim *Simulator
}

func (c frameCollector) SendFrame(f *protocol.AggregatedFrame) error {
	c.sim.frames = append(c.sim.frames, f)
	if c.sim.sink != nil {
		return c.sim.sink.SendFrame(f)
	}
	return nil
}

// simNode is the radio of one simulated node
type simNode struct {
	id      rssi.NodeID
	conf    Node
	sim     *Simulator
	node    *protocol.Node
	channel uint8
	level   int8
}

func (n *simNode) Send(data []byte) error {
	n.sim.transmit(n.id, n.channel, data)
	return nil
}

func (n *simNode) SetChannel(ch uint8) error {
	n.channel = ch
	return nil
}

func (n *simNode) ReadRSSI() int8 {
	return n.level
}

func (n *simNode) receive(channel uint8, data []byte, level int8) {
	if channel != n.channel {
		return
	}
	n.level = level
	n.node.HandleReceive(data)
}
