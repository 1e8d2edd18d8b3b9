package radio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"
)

// datagram header: channel(1) | sender(1)
const headerSize = 2

var ErrClosed = errors.New("radio is closed")

// ReceiveFunc is called for every frame the radio accepts, with the RSSI
// measured for it. It is called from the receive goroutine.
type ReceiveFunc func(data []byte, rssi int8)

type peer struct {
	link Link
	addr *net.UDPAddr
}

// WithLogger sets the logger for the radio
func WithLogger(logger *slog.Logger) func(r *UDP) {
	return func(r *UDP) {
		r.logger = logger.With(slog.String("radio", "udp"))
	}
}

// WithRand sets the random source used for loss and jitter
func WithRand(rnd *rand.Rand) func(r *UDP) {
	return func(r *UDP) {
		r.rnd = rnd
	}
}

// UDP emulates a shared radio medium over UDP datagrams. Each datagram carries
// the channel the sender was tuned to, so a receiver drops frames sent on a
// channel it is not listening to.
type UDP struct {
	id    uint8
	conn  *net.UDPConn
	peers map[uint8]peer

	channel  atomic.Uint32
	lastRSSI atomic.Int32

	mu  sync.Mutex // guards rnd
	rnd *rand.Rand

	isListening atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	logger *slog.Logger
}

// NewUDP binds the listen address of the node
func NewUDP(id uint8, config Config, options ...func(r *UDP)) (*UDP, error) {
	if err := config.Validate(); err != nil {
		return nil, NewConfigError("radio: invalid configuration", err)
	}

	laddr, err := net.ResolveUDPAddr("udp", config.Listen)
	if err != nil {
		return nil, NewConfigError(fmt.Sprintf("radio: resolving %s", config.Listen), err)
	}

	peers := make(map[uint8]peer, len(config.Links))
	for _, l := range config.Links {
		addr, err := net.ResolveUDPAddr("udp", l.Address)
		if err != nil {
			return nil, NewConfigError(fmt.Sprintf("radio: resolving %s", l.Address), err)
		}
		if l.RSSI == 0 {
			l.RSSI = DefaultLinkRSSI
		}
		peers[l.ID] = peer{link: l, addr: addr}
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, NewRuntimeError(fmt.Sprintf("radio: listening on %s", config.Listen), err)
	}

	r := UDP{
		id:     id,
		conn:   conn,
		peers:  peers,
		rnd:    rand.New(rand.NewPCG(uint64(id), 0x5eed)),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&r)
	}

	return &r, nil
}

// Addr returns the local address the radio listens on
func (r *UDP) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// SetChannel tunes the radio
func (r *UDP) SetChannel(ch uint8) error {
	r.channel.Store(uint32(ch))
	return nil
}

// Channel returns the channel the radio is tuned to
func (r *UDP) Channel() uint8 {
	return uint8(r.channel.Load())
}

// ReadRSSI returns the signal strength of the last accepted frame
func (r *UDP) ReadRSSI() int8 {
	return int8(r.lastRSSI.Load())
}

// Send transmits data on the current channel to every linked peer. Delivery is
// best effort: the error reports only failures of the local socket.
func (r *UDP) Send(data []byte) error {
	if len(data)+headerSize > MaxDatagramSize {
		return NewRuntimeError(fmt.Sprintf("radio: frame of %d bytes exceeds %d", len(data), MaxDatagramSize-headerSize), nil)
	}

	datagram := make([]byte, headerSize+len(data))
	datagram[0] = r.Channel()
	datagram[1] = r.id
	copy(datagram[headerSize:], data)

	var errs []error
	for _, p := range r.peers {
		if _, err := r.conn.WriteToUDP(datagram, p.addr); err != nil {
			errs = append(errs, fmt.Errorf("sending to node %d: %w", p.link.ID, err))
		}
	}

	if len(errs) > 0 {
		return NewRuntimeError("radio: transmit failed", errors.Join(errs...))
	}
	return nil
}

// Listen starts receiving datagrams and calls fn for each accepted frame. The
// returned channel is closed when the radio stops receiving, after delivering
// the error that stopped it, if any.
func (r *UDP) Listen(ctx context.Context, fn ReceiveFunc) (<-chan error, error) {
	if r.isListening.Load() {
		return nil, fmt.Errorf("radio is already listening")
	}
	r.isListening.Store(true)

	ctx, r.cancel = context.WithCancel(ctx)
	stopped := make(chan error, 1)

	// unblock ReadFromUDP on cancellation
	go func() {
		<-ctx.Done()
		_ = r.conn.Close()
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(stopped)
		defer r.isListening.Store(false)

		r.logger.Info("listening", slog.String("addr", r.conn.LocalAddr().String()))

		buf := make([]byte, MaxDatagramSize)
		for {
			n, _, err := r.conn.ReadFromUDP(buf)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					r.logger.Info("listening stopped")
					return
				}
				stopped <- fmt.Errorf("reading datagram: %w", err)
				return
			}

			data, rssi, ok := r.accept(buf[:n])
			if !ok {
				continue
			}

			r.lastRSSI.Store(int32(rssi))
			fn(data, rssi)
		}
	}()

	return stopped, nil
}

// accept applies the emulated medium to a datagram: channel filter, link
// table, loss and signal strength
func (r *UDP) accept(datagram []byte) ([]byte, int8, bool) {
	if len(datagram) < headerSize {
		return nil, 0, false
	}
	if datagram[0] != r.Channel() {
		return nil, 0, false
	}

	p, ok := r.peers[datagram[1]]
	if !ok {
		r.logger.Debug("datagram from unlinked node", slog.Int("sender", int(datagram[1])))
		return nil, 0, false
	}

	r.mu.Lock()
	lost := p.link.Loss > 0 && r.rnd.Float64() < p.link.Loss
	var jitter int
	if p.link.Jitter > 0 {
		jitter = r.rnd.IntN(2*int(p.link.Jitter)+1) - int(p.link.Jitter)
	}
	r.mu.Unlock()

	if lost {
		return nil, 0, false
	}

	rssi := min(max(int(p.link.RSSI)+jitter, -128), 0)

	data := make([]byte, len(datagram)-headerSize)
	copy(data, datagram[headerSize:])
	return data, int8(rssi), true
}

// Close stops receiving and releases the socket
func (r *UDP) Close() error {
	if r.cancel != nil {
		r.cancel()
		r.wg.Wait()
	}

	if err := r.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("closing radio: %w", err)
	}
	return nil
}
