package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/radiosense/internal/rssi"
	"github.com/roman-kulish/radiosense/internal/survey"
)

// maxSamplesPerInsert keeps a multi-row insert under the sqlite bound variable limit
const maxSamplesPerInsert = 300

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

var _ Store = (*SqliteStore)(nil)

// NewSqliteStore creates a store backed by the sqlite database at dbPath.
// Connections are opened lazily; the schema is created on the first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, params SessionParams) (session *survey.Session, err error) {
	configData, err := configToNullString(params.Config)
	if err != nil {
		return nil, err
	}

	startTime := params.StartTime
	if startTime.IsZero() {
		startTime = time.Now()
	}

	db, err := s.getWriteDB()
	if err != nil {
		return nil, fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	sess := survey.Session{
		UUID:      uuid.NewString(),
		StartTime: startTime.UTC(),
		Source:    params.Source,
		RootID:    params.RootID,
		NodeCount: params.NodeCount,
		Channels:  params.Channels,
	}
	if configData.Valid {
		sess.Config = &configData.String
	}

	result, err := stmt.ExecContext(ctx,
		sess.UUID,
		sess.StartTime,
		sess.Source,
		sess.RootID,
		sess.NodeCount,
		formatChannels(sess.Channels),
		configData,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}

	if sess.ID, err = result.LastInsertId(); err != nil {
		return nil, fmt.Errorf("getting session ID: %w", err)
	}

	return &sess, nil
}

func scanSession(row interface{ Scan(...any) error }) (*survey.Session, error) {
	var data sessionData
	if err := row.Scan(&data.ID, &data.UUID, &data.StartTime, &data.Source, &data.RootID, &data.NodeCount, &data.Channels, &data.Config); err != nil {
		return nil, err
	}

	channels, err := parseChannels(data.Channels)
	if err != nil {
		return nil, err
	}

	sess := survey.Session{
		ID:        data.ID,
		UUID:      data.UUID,
		StartTime: data.StartTime,
		Source:    data.Source,
		RootID:    uint8(data.RootID),
		NodeCount: int(data.NodeCount),
		Channels:  channels,
	}
	if data.Config.Valid {
		sess.Config = &data.Config.String
	}

	return &sess, nil
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *survey.Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	return loadSession(ctx, db, id)
}

func loadSession(ctx context.Context, db *sql.DB, id int64) (session *survey.Session, err error) {
	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if session, err = scanSession(stmt.QueryRowContext(ctx, id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: session %d", ErrNoData, id)
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return session, nil
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*survey.Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}

	return sessions, rows.Err()
}

func (s *SqliteStore) StoreFrames(ctx context.Context, frames []*survey.Frame) (err error) {
	if len(frames) == 0 {
		return nil
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	stmt, err := tx.PrepareContext(ctx, insertFrameSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	ids := make([]int64, len(frames))
	var samples []sampleData
	for i, f := range frames {
		result, err := stmt.ExecContext(ctx, f.SessionID, f.Epoch, f.Channel, f.SenderID, f.Timestamp.UTC(), f.TimedOut)
		if err != nil {
			return fmt.Errorf("inserting frame: %w", err)
		}

		if ids[i], err = result.LastInsertId(); err != nil {
			return fmt.Errorf("getting frame ID: %w", err)
		}

		for _, sample := range f.Samples {
			samples = append(samples, toSampleData(ids[i], sample))
		}
	}

	for start := 0; start < len(samples); start += maxSamplesPerInsert {
		if err = insertSamples(ctx, tx, samples[start:min(start+maxSamplesPerInsert, len(samples))]); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	// only report IDs once they are durable
	for i, f := range frames {
		f.ID = ids[i]
	}

	return nil
}

func insertSamples(ctx context.Context, tx *sql.Tx, samples []sampleData) error {
	values := make([]interface{}, 0, len(samples)*3)

	var sb strings.Builder
	sb.WriteString(insertSamplesSQL)

	for i, data := range samples {
		values = append(values, data.FrameID, data.NodeID, data.RSSI)

		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?)")
	}

	if _, err := tx.ExecContext(ctx, sb.String(), values...); err != nil {
		return fmt.Errorf("batch inserting samples: %w", err)
	}
	return nil
}

// ReadFrames creates a new FrameReader over the frames of a session.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - sessionID: Unique identifier of the session to read from
//   - opts: Optional filters (WithChannel, WithStartTime, WithEndTime, WithTimeRange)
//
// The returned FrameReader must be closed after use to release database resources.
// Each reader instance should only be used from a single goroutine.
//
// Returns error if reader creation fails or session doesn't exist.
func (s *SqliteStore) ReadFrames(ctx context.Context, sessionID int64, opts ...ReaderOption) (FrameReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteFrameReader(ctx, db, sessionID, opts...)
}

// ChannelMatrix aggregates every frame of a session into channel by node statistics.
// Rows follow the channel order of the session, cells cover every node.
func (s *SqliteStore) ChannelMatrix(ctx context.Context, sessionID int64) (matrix *survey.Matrix, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	sess, err := loadSession(ctx, db, sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, selectMatrixSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying matrix: %w", err)
	}
	defer closeWithError(rows, &err)

	cells := make(map[uint8][]survey.Cell, len(sess.Channels))
	newRow := func() []survey.Cell {
		row := make([]survey.Cell, sess.NodeCount)
		for i := range row {
			row[i].NodeID = uint8(i)
		}
		return row
	}
	for _, ch := range sess.Channels {
		cells[ch] = newRow()
	}

	for rows.Next() {
		var channel, nodeID, frames, missing int64
		var mean sql.NullFloat64
		var lo, hi sql.NullInt16
		if err = rows.Scan(&channel, &nodeID, &mean, &lo, &hi, &frames, &missing); err != nil {
			return nil, fmt.Errorf("scanning matrix cell: %w", err)
		}

		row, ok := cells[uint8(channel)]
		if !ok {
			row = newRow()
			cells[uint8(channel)] = row
			sess.Channels = append(sess.Channels, uint8(channel))
		}
		if nodeID < 0 || int(nodeID) >= len(row) {
			continue
		}

		c := &row[nodeID]
		c.Frames = int(frames)
		c.Missing = int(missing)
		if mean.Valid {
			c.Mean = &mean.Float64
		}
		c.Min = fromNullRSSI(lo)
		c.Max = fromNullRSSI(hi)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("reading matrix: %w", err)
	}

	matrix = &survey.Matrix{Session: sess}
	for _, ch := range sess.Channels {
		matrix.Rows = append(matrix.Rows, survey.ChannelRow{
			Channel:   ch,
			Frequency: rssi.ChannelFrequency(ch),
			Cells:     cells[ch],
		})
	}

	return matrix, nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
