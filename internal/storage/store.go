package storage

import (
	"context"
	"time"

	"github.com/roman-kulish/radiosense/internal/survey"
)

// SessionParams describes the fleet a new session records
type SessionParams struct {
	Source    string
	RootID    uint8
	NodeCount int
	Channels  []uint8
	StartTime time.Time // defaults to now
	Config    any       // string, []byte or JSON-serializable object
}

// Store provides an interface for managing RSSI survey data storage operations.
// It handles sessions and aggregated frames in a thread-safe manner.
// All operations that write to the database should be considered atomic.
type Store interface {
	// CreateSession initializes a new survey session and returns it with its
	// identifiers filled in.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - params: Fleet layout and optional configuration of the session
	//
	// Returns:
	//   - session: The stored session, including its numeric ID and UUID
	//   - error: If session creation fails or context is cancelled
	CreateSession(ctx context.Context, params SessionParams) (*survey.Session, error)

	// Session retrieves a specific survey session by its ID.
	Session(ctx context.Context, id int64) (*survey.Session, error)

	// Sessions returns all sessions in the order they were created.
	Sessions(ctx context.Context) ([]*survey.Session, error)

	// StoreFrames stores frames with their samples within a single transaction.
	// Frame IDs are filled in on success.
	StoreFrames(ctx context.Context, frames []*survey.Frame) error

	// ReadFrames returns a reader over the frames of a session in the order
	// they were stored, filtered by the given options.
	//
	// The returned FrameReader must be closed after use to release database resources.
	ReadFrames(ctx context.Context, sessionID int64, opts ...ReaderOption) (FrameReader, error)

	// ChannelMatrix aggregates a session into per channel, per node statistics.
	ChannelMatrix(ctx context.Context, sessionID int64) (*survey.Matrix, error)

	// Close releases database connections.
	Close() error
}

// FrameReader provides an iterator-based interface for reading frames
type FrameReader interface {
	// Next advances the iterator and returns true if there is another frame
	// to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current frame in the iteration.
	Current() *survey.Frame

	// Error returns any error that occurred during iteration.
	Error() error

	// Close releases any resources associated with the reader.
	Close() error
}
