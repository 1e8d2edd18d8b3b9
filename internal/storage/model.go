package storage

import (
	"database/sql"
	"time"
)

type sessionData struct {
	ID        int64
	UUID      string
	StartTime time.Time
	Source    string
	RootID    int64
	NodeCount int64
	Channels  string
	Config    sql.NullString
}

type frameData struct {
	ID        int64
	SessionID int64
	Epoch     int64
	Channel   int64
	SenderID  int64
	Timestamp time.Time
	TimedOut  bool
}

// sampleData is one slot of a frame; RSSI is NULL when the node was unreachable
type sampleData struct {
	FrameID int64
	NodeID  int64
	RSSI    sql.NullInt16
}

type frameSampleData struct {
	frameData
	NodeID int64
	RSSI   sql.NullInt16
}
