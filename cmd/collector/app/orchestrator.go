package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roman-kulish/radiosense/internal/collect"
	"github.com/roman-kulish/radiosense/internal/protocol"
	"github.com/roman-kulish/radiosense/internal/sink"
	"github.com/roman-kulish/radiosense/internal/storage"
	"github.com/roman-kulish/radiosense/internal/survey"
)

const maxBatchSize = 100

// WithMaxBatchSize sets the maximum batch size of collected frames to store
// within a single database transaction.
func WithMaxBatchSize(size int) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.maxBatchSize = size
	}
}

// WithLogger sets the orchestrator logger
func WithLogger(logger *slog.Logger) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// Orchestrator reads frames the root ships over the host link, numbers their
// epochs and stores them in a database session.
type Orchestrator struct {
	source *collect.Source
	buffer *collect.EpochBuffer
	store  storage.Store
	config *protocol.Config

	session *survey.Session
	logger  *slog.Logger

	maxBatchSize int
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(source *collect.Source, buffer *collect.EpochBuffer, store storage.Store, config *protocol.Config, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		source:       source,
		buffer:       buffer,
		store:        store,
		config:       config,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		maxBatchSize: maxBatchSize,
	}

	for _, option := range options {
		option(&o)
	}

	return &o
}

// Session returns the session frames are stored into, nil before Run
func (o *Orchestrator) Session() *survey.Session {
	return o.session
}

// Run creates a session and collects frames until the stream ends or the
// context is cancelled. Frames still buffered are stored before it returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	session, err := o.store.CreateSession(ctx, storage.SessionParams{
		Source:    o.source.Name(),
		RootID:    uint8(o.config.RootID),
		NodeCount: o.config.NodeCount,
		Channels:  o.config.Channels,
		Config:    o.config,
	})
	if err != nil {
		return fmt.Errorf("creating session for %s: %w", o.source.Name(), err)
	}
	o.session = session

	o.logger.Info("session created",
		slog.Int64("session", session.ID),
		slog.String("uuid", session.UUID))

	frames := make(chan *sink.Frame, len(o.config.Channels))
	handled := make(chan struct{})

	// buffered frames must be stored even when collection was interrupted
	go o.handleFrames(context.WithoutCancel(ctx), frames, handled)

	done, err := o.source.BeginReading(ctx, frames)
	if err != nil {
		close(frames)
		<-handled
		return fmt.Errorf("reading %s: %w", o.source.Name(), err)
	}

	var errs []error
	for err := range done {
		errs = append(errs, err)
	}

	close(frames) // the source has stopped sending
	<-handled

	return errors.Join(errs...)
}

func (o *Orchestrator) handleFrames(ctx context.Context, frames <-chan *sink.Frame, handled chan<- struct{}) {
	defer close(handled)

	for f := range frames {
		frame := survey.NewFrame(o.session.ID, 0, f.Channel, f.SenderID, f.Received, f.RSSI)
		if err := o.buffer.Insert(frame); err != nil {
			o.logger.Warn(fmt.Sprintf("dropping frame: %s", err.Error()))
			continue
		}

		if o.buffer.IsFull() {
			if err := o.storeFrames(ctx, o.buffer.Flush()); err != nil {
				o.logger.Error(err.Error())
			}
		}
	}

	if err := o.storeFrames(ctx, o.buffer.DrainAll()); err != nil {
		o.logger.Error(err.Error())
	}
}

func (o *Orchestrator) storeFrames(ctx context.Context, frames []*survey.Frame) error {
	for chunk := range slices.Chunk(frames, o.maxBatchSize) {
		if err := o.store.StoreFrames(ctx, chunk); err != nil {
			return fmt.Errorf("storing frames: %w", err)
		}
	}

	if len(frames) > 0 {
		o.logger.Debug("frames stored",
			slog.Int("count", len(frames)),
			slog.Uint64("epoch", uint64(frames[len(frames)-1].Epoch)))
	}

	return nil
}
