package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roman-kulish/radiosense/internal/survey"
)

// ErrNoData indicates either that no data exists for the given parameters,
// or that all available frames have been read from the reader.
var ErrNoData = fmt.Errorf("no data available")

// ReaderOption configures a FrameReader with specific filtering criteria.
type ReaderOption func(*SqliteFrameReader)

// WithChannel restricts the reader to frames aggregated on one channel.
func WithChannel(ch uint8) ReaderOption {
	return func(r *SqliteFrameReader) {
		r.channel = &ch
	}
}

// WithStartTime sets the start time filter for the frame reader.
// Frames shipped before this time will be excluded.
func WithStartTime(t time.Time) ReaderOption {
	return func(r *SqliteFrameReader) {
		r.startTime = &t
	}
}

// WithEndTime sets the end time filter for the frame reader.
// Frames shipped after this time will be excluded.
func WithEndTime(t time.Time) ReaderOption {
	return func(r *SqliteFrameReader) {
		r.endTime = &t
	}
}

// WithTimeRange sets both start and end time filters.
// This is a convenience function equivalent to applying both WithStartTime
// and WithEndTime.
func WithTimeRange(startTime, endTime time.Time) ReaderOption {
	return func(r *SqliteFrameReader) {
		r.startTime = &startTime
		r.endTime = &endTime
	}
}

// newSqliteFrameReader creates a FrameReader over the frames of a session, applying optional filters.
func newSqliteFrameReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteFrameReader, error) {
	fr := &SqliteFrameReader{
		db:        db,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(fr)
	}
	if err := fr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return fr, nil
}

// SqliteFrameReader implements FrameReader for SQLite database backend.
// Rows arrive one per sample and are grouped back into frames.
type SqliteFrameReader struct {
	db *sql.DB

	sessionID int64
	session   *survey.Session

	channel   *uint8     // Optional channel filter
	startTime *time.Time // Optional start of time range filter
	endTime   *time.Time // Optional end of time range filter

	current *survey.Frame
	next    *frameSampleData // first row of the next frame
	rows    *sql.Rows
	err     error
}

func (fr *SqliteFrameReader) init(ctx context.Context) error {
	if fr.db == nil {
		return errors.New("database connection required")
	}
	if fr.sessionID <= 0 {
		return errors.New("session ID required")
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: fr.loadSession},
		{msg: "validating filters", fn: fr.validateFilters},
		{msg: "initializing query", fn: fr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (fr *SqliteFrameReader) loadSession(ctx context.Context) (err error) {
	fr.session, err = loadSession(ctx, fr.db, fr.sessionID)
	return err
}

func (fr *SqliteFrameReader) validateFilters(context.Context) error {
	if fr.startTime != nil && fr.endTime != nil && fr.startTime.After(*fr.endTime) {
		return fmt.Errorf("start time %s is after end time %s", fr.startTime, fr.endTime)
	}
	return nil
}

// nullable turns an unset filter into NULL; timestamps are stored in UTC and compared as text
func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	if t, ok := any(*v).(time.Time); ok {
		return t.UTC()
	}
	return *v
}

func (fr *SqliteFrameReader) initQuery(ctx context.Context) (err error) {
	stmt, err := fr.db.PrepareContext(ctx, selectFramesSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	ch, start, end := nullable(fr.channel), nullable(fr.startTime), nullable(fr.endTime)
	if fr.rows, err = stmt.QueryContext(ctx, fr.sessionID, ch, ch, start, start, end, end); err != nil {
		return err
	}
	return nil
}

func (fr *SqliteFrameReader) scanRow() (*frameSampleData, error) {
	var row frameSampleData
	err := fr.rows.Scan(
		&row.ID,
		&row.Epoch,
		&row.Channel,
		&row.SenderID,
		&row.Timestamp,
		&row.TimedOut,
		&row.NodeID,
		&row.RSSI,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning sample: %w", err)
	}
	return &row, nil
}

// Session returns the session the reader iterates over
func (fr *SqliteFrameReader) Session() *survey.Session {
	return fr.session
}

func (fr *SqliteFrameReader) Next(ctx context.Context) bool {
	if fr.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		fr.err = err
		return false
	}

	first := fr.next
	fr.next = nil
	if first == nil {
		if !fr.rows.Next() {
			fr.err = fr.rows.Err()
			if fr.err == nil {
				fr.err = ErrNoData
			}
			return false
		}

		var err error
		if first, err = fr.scanRow(); err != nil {
			fr.err = err
			return false
		}
	}

	frame := survey.Frame{
		ID:        first.ID,
		SessionID: fr.sessionID,
		Epoch:     uint32(first.Epoch),
		Channel:   uint8(first.Channel),
		SenderID:  uint8(first.SenderID),
		Timestamp: first.Timestamp,
		TimedOut:  first.TimedOut,
		Samples:   []survey.Sample{{NodeID: uint8(first.NodeID), DBm: fromNullRSSI(first.RSSI)}},
	}

	for fr.rows.Next() {
		row, err := fr.scanRow()
		if err != nil {
			fr.err = err
			return false
		}
		if row.ID != frame.ID {
			fr.next = row
			break
		}
		frame.Samples = append(frame.Samples, survey.Sample{NodeID: uint8(row.NodeID), DBm: fromNullRSSI(row.RSSI)})
	}
	if err := fr.rows.Err(); err != nil {
		fr.err = err
		return false
	}

	fr.current = &frame
	return true
}

func (fr *SqliteFrameReader) Current() *survey.Frame {
	return fr.current
}

// Error returns the error that stopped the iteration. Reaching the end of
// the frames is not an error.
func (fr *SqliteFrameReader) Error() error {
	if errors.Is(fr.err, ErrNoData) {
		return nil
	}
	return fr.err
}

func (fr *SqliteFrameReader) Close() error {
	if fr.rows != nil {
		return fr.rows.Close()
	}
	return nil
}
