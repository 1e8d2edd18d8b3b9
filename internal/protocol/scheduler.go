package protocol

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/roman-kulish/radiosense/internal/rssi"
)

const (
	StateIdle State = iota
	StateScanning
)

// State of the channel scheduler
type State int

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Window is the active channel and the time bounds that apply to it
type Window struct {
	Index   int
	Channel uint8
	Epoch   uint32
	Opened  time.Time
	Dwell   time.Duration
}

// Closes returns the nominal end of the window
func (w Window) Closes() time.Time {
	return w.Opened.Add(w.Dwell)
}

// Scheduler rotates through the channel list. Every node runs the same dwell
// formula, so windows stay aligned across the fleet without a shared clock.
type Scheduler struct {
	channels []uint8
	dwell    time.Duration

	radio    Radio
	store    *Store
	watchdog *Watchdog
	logger   *slog.Logger

	state  State
	epoch  uint32
	window Window
}

// NewScheduler creates a scheduler in the Idle state
func NewScheduler(channels []uint8, dwell time.Duration, radio Radio, store *Store, watchdog *Watchdog, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		channels: channels,
		dwell:    dwell,
		radio:    radio,
		store:    store,
		watchdog: watchdog,
		logger:   logger,
	}
}

// Enter opens the window for channels[i], anchored at the given time.
// Entering index 0 starts a new epoch.
func (s *Scheduler) Enter(i int, anchor time.Time) Window {
	i %= len(s.channels)
	if i == 0 {
		s.startEpoch(s.epoch + 1)
	}

	s.state = StateScanning
	s.window = Window{
		Index:   i,
		Channel: s.channels[i],
		Epoch:   s.epoch,
		Opened:  anchor,
		Dwell:   s.dwell,
	}

	if err := s.radio.SetChannel(s.window.Channel); err != nil {
		// the next window retunes anyway
		s.logger.Warn(fmt.Sprintf("failed to tune radio: %s", err.Error()), channelAttrs(s.window.Channel))
	}

	s.watchdog.Arm(s.window.Closes().Sub(s.watchdog.clock.Now()))
	return s.window
}

// Reanchor shifts the current window so that it opened at anchor and lasts dwell
func (s *Scheduler) Reanchor(anchor time.Time, dwell time.Duration) Window {
	s.window.Opened = anchor
	s.window.Dwell = dwell
	s.watchdog.Reanchor(s.window.Closes())
	return s.window
}

// Next returns the index that follows the current window and whether it wraps
// around into a new epoch
func (s *Scheduler) Next() (int, bool) {
	next := (s.window.Index + 1) % len(s.channels)
	return next, next == 0
}

// AdoptEpoch switches to the given epoch without touching the window
func (s *Scheduler) AdoptEpoch(epoch uint32) {
	s.startEpoch(epoch)
	s.window.Epoch = epoch
}

func (s *Scheduler) startEpoch(epoch uint32) {
	s.watchdog.ResetEpoch(s.store.Snapshot())
	s.store.Reset()
	s.epoch = epoch
}

// Stop returns to Idle
func (s *Scheduler) Stop() {
	s.state = StateIdle
	s.watchdog.Stop()
}

func (s *Scheduler) State() State { return s.state }

func (s *Scheduler) Epoch() uint32 { return s.epoch }

func (s *Scheduler) Window() Window { return s.window }

// FirstChannel is the channel every node listens on before its first window
func (s *Scheduler) FirstChannel() uint8 {
	return s.channels[0]
}

// channelAttrs describes a channel for log records
func channelAttrs(ch uint8) slog.Attr {
	return slog.Group("channel",
		slog.Int("id", int(ch)),
		slog.String("freq", rssi.FormatFrequency(ch)),
	)
}
