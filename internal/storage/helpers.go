package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roman-kulish/radiosense/internal/survey"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil && !errors.Is(cErr, sql.ErrTxDone) {
		*err = cErr
	}
}

func toSampleData(frameID int64, s survey.Sample) sampleData {
	var rssi sql.NullInt16
	if s.DBm != nil {
		rssi.Int16 = int16(*s.DBm)
		rssi.Valid = true
	}

	return sampleData{
		FrameID: frameID,
		NodeID:  int64(s.NodeID),
		RSSI:    rssi,
	}
}

func fromNullRSSI(v sql.NullInt16) *int8 {
	if !v.Valid {
		return nil
	}
	dbm := int8(v.Int16)
	return &dbm
}

// configToNullString accepts a string, a byte slice or anything JSON-serializable
func configToNullString(config any) (sql.NullString, error) {
	var data sql.NullString

	switch c := config.(type) {
	case nil:
	case string:
		data = sql.NullString{String: c, Valid: true}
	case []byte:
		data = sql.NullString{String: string(c), Valid: true}
	default:
		p, err := json.Marshal(config)
		if err != nil {
			return data, fmt.Errorf("marshaling config: %w", err)
		}
		data = sql.NullString{String: string(p), Valid: true}
	}

	return data, nil
}

// channels are stored as a comma separated list, in scan order
func formatChannels(channels []uint8) string {
	parts := make([]string, len(channels))
	for i, ch := range channels {
		parts[i] = strconv.Itoa(int(ch))
	}
	return strings.Join(parts, ",")
}

func parseChannels(s string) ([]uint8, error) {
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	channels := make([]uint8, len(parts))
	for i, p := range parts {
		ch, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("parsing channel list '%s': %w", s, err)
		}
		channels[i] = uint8(ch)
	}
	return channels, nil
}
