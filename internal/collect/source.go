package collect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roman-kulish/radiosense/internal/sink"
	"github.com/roman-kulish/radiosense/internal/wire"
)

// WithLogger sets the logger for the source
func WithLogger(logger *slog.Logger) func(s *Source) {
	return func(s *Source) {
		s.logger = logger.With(slog.String("source", s.stream.Name()))
	}
}

// WithParseErrorsThreshold sets the threshold for consecutive parse errors
func WithParseErrorsThreshold(threshold uint8) func(s *Source) {
	return func(s *Source) {
		s.parseErrorsThreshold = threshold
	}
}

// Source reads sink frames from a host link stream. It can be started and stopped.
type Source struct {
	stream Stream
	codec  *wire.Codec

	isReading atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	parseErrorsThreshold uint8
	logger               *slog.Logger
}

// NewSource creates a new Source instance with a discard logger
func NewSource(stream Stream, codec *wire.Codec, options ...func(s *Source)) *Source {
	s := Source{
		stream:               stream,
		codec:                codec,
		logger:               slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		parseErrorsThreshold: sink.ParseErrorsThreshold,
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Name returns the name of the underlying stream
func (s *Source) Name() string {
	return s.stream.Name()
}

// BeginReading opens the stream and sends every frame read from it to the
// frames channel. The returned channel is closed when reading stops, after
// delivering the error that stopped it, if any.
func (s *Source) BeginReading(ctx context.Context, frames chan<- *sink.Frame) (<-chan error, error) {
	if !s.isReading.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("source is already running")
	}

	ctx, s.cancel = context.WithCancel(ctx)

	stream, err := s.stream.Open(ctx)
	if err != nil {
		s.cancel()
		s.isReading.Store(false) // Reset running state on error
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	rc := &onceCloser{ReadCloser: stream}

	// unblock a pending read on cancellation
	go func() {
		<-ctx.Done()
		_ = rc.Close()
	}()

	readingStopped := make(chan error, 1)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(readingStopped)
		defer s.isReading.Store(false)

		s.logger.Info("starting frames collection...")

		reader := sink.NewReader(rc, s.codec,
			sink.WithLogger(s.logger),
			sink.WithParseErrorsThreshold(s.parseErrorsThreshold))

		var errs []error
		if err := reader.Run(ctx, frames); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}

		s.cancel()
		if err := rc.Close(); err != nil {
			errs = append(errs, err)
		}

		s.logger.Info("frames collection stopped")

		if len(errs) > 0 {
			err := errors.Join(errs...)
			s.logger.Error(err.Error())
			readingStopped <- err
		}
	}()

	return readingStopped, nil
}

// Stop cancels reading and waits for the reader to finish
func (s *Source) Stop() {
	if !s.isReading.Load() {
		return // already stopped
	}

	s.cancel()
	s.wg.Wait()
}

// IsReading returns true if the source is running
func (s *Source) IsReading() bool {
	return s.isReading.Load()
}

type onceCloser struct {
	io.ReadCloser
	once sync.Once
	err  error
}

func (c *onceCloser) Close() error {
	c.once.Do(func() {
		c.err = c.ReadCloser.Close()
	})
	return c.err
}
