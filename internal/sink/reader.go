package sink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"github.com/roman-kulish/radiosense/internal/wire"
)

const (
	// ParseErrorsThreshold defines the number of consecutive parse errors allowed
	ParseErrorsThreshold = 5
)

var (
	// ErrTooManyParseErrors is returned when the number of consecutive parse errors exceeds the threshold
	ErrTooManyParseErrors = errors.New("too many consecutive parse errors")

	// ErrBrokenPipe is returned when reading the host link fails
	ErrBrokenPipe = errors.New("broken pipe")
)

// Frame is a sink frame together with the time it was read
type Frame struct {
	wire.SinkFrame
	Received time.Time
}

// WithLogger sets the logger for the reader
func WithLogger(logger *slog.Logger) func(r *Reader) {
	return func(r *Reader) {
		r.logger = logger.With(slog.String("reader", "serial"))
	}
}

// WithParseErrorsThreshold sets the threshold for consecutive parse errors
func WithParseErrorsThreshold(threshold uint8) func(r *Reader) {
	return func(r *Reader) {
		r.parseErrorsThreshold = threshold
	}
}

// Reader parses the serial framing from a byte stream. On a framing error it
// skips a single byte and tries again from there.
type Reader struct {
	src   *bufio.Reader
	codec *wire.Codec
	now   func() time.Time

	parseErrorsThreshold uint8
	logger               *slog.Logger
}

// NewReader creates a reader with a discard logger
func NewReader(src io.Reader, codec *wire.Codec, options ...func(r *Reader)) *Reader {
	r := Reader{
		src:                  bufio.NewReaderSize(src, wire.MaxSerialSize*2),
		codec:                codec,
		now:                  time.Now,
		parseErrorsThreshold: ParseErrorsThreshold,
		logger:               slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&r)
	}

	return &r
}

// Next returns the next valid frame. It returns io.EOF at the end of the
// stream and ErrTooManyParseErrors once the consecutive error threshold is hit.
func (r *Reader) Next() (*Frame, error) {
	var parseErrors uint8

	for {
		f, err := r.next()
		if err == nil {
			return f, nil
		}

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		if errors.Is(err, ErrBrokenPipe) {
			return nil, err
		}

		parseErrors++
		r.logger.Warn(fmt.Sprintf("error parsing frame: %s", err.Error()))

		if parseErrors >= r.parseErrorsThreshold {
			return nil, ErrTooManyParseErrors
		}

		// resync one byte further
		if _, err = r.src.Discard(1); err != nil {
			return nil, io.EOF
		}
	}
}

func (r *Reader) next() (*Frame, error) {
	head, err := r.src.Peek(wire.LengthFieldSize)
	if err != nil {
		return nil, r.readError(err)
	}

	size := wire.LengthFieldSize + int(head[0])
	data, err := r.src.Peek(size)
	if err != nil {
		if errors.Is(err, io.EOF) && r.src.Buffered() > wire.LengthFieldSize {
			// truncated frame or a corrupted length byte
			return nil, fmt.Errorf("%w: stream ends %d bytes into a %d bytes frame", wire.ErrFraming, len(data), size)
		}
		return nil, r.readError(err)
	}

	sf, err := r.codec.DecodeSinkFrame(data[wire.LengthFieldSize:])
	if err != nil {
		return nil, err
	}

	if _, err = r.src.Discard(size); err != nil {
		return nil, r.readError(err)
	}

	return &Frame{SinkFrame: *sf, Received: r.now()}, nil
}

func (r *Reader) readError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, fs.ErrClosed) {
		return io.EOF
	}
	return fmt.Errorf("%w: %w", ErrBrokenPipe, err)
}

// Run reads frames and sends them to the frames channel until the stream ends,
// the context is cancelled or the parse error threshold is hit
func (r *Reader) Run(ctx context.Context, frames chan<- *Frame) error {
	for {
		f, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		select {
		case frames <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
