package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_frames_session_time ON frames (session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_frames_session_channel ON frames (session_id, channel);`

	insertSessionSQL = `
INSERT INTO sessions (uuid,
                      start_time,
                      source,
                      root_id,
                      node_count,
                      channels,
                      config)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectSessionSQL = `
SELECT 
    id, 
    uuid,
    start_time, 
    source, 
    root_id, 
    node_count,
    channels,
    config 
FROM sessions 
WHERE 
    id = ?`

	selectSessionsSQL = `
SELECT 
    id, 
    uuid,
    start_time, 
    source, 
    root_id, 
    node_count,
    channels,
    config 
FROM sessions
ORDER BY id`

	insertFrameSQL = `
INSERT INTO frames (session_id,
                    epoch,
                    channel,
                    sender_id,
                    timestamp,
                    timed_out)
VALUES (?, ?, ?, ?, ?, ?)`

	insertSamplesSQL = `
INSERT INTO samples (frame_id,
                     node_id,
                     rssi)
VALUES `

	selectFramesSQL = `
SELECT
    f.id,
    f.epoch,
    f.channel,
    f.sender_id,
    f.timestamp,
    f.timed_out,
    s.node_id,
    s.rssi
FROM frames f
    JOIN samples s ON s.frame_id = f.id
WHERE
    f.session_id = ?
    AND (? IS NULL OR f.channel = ?)
    AND (? IS NULL OR f.timestamp >= ?)
    AND (? IS NULL OR f.timestamp <= ?)
ORDER BY f.id, s.node_id`

	selectMatrixSQL = `
SELECT
    f.channel,
    s.node_id,
    AVG(s.rssi),
    MIN(s.rssi),
    MAX(s.rssi),
    COUNT(*),
    SUM(CASE WHEN s.rssi IS NULL THEN 1 ELSE 0 END)
FROM frames f
    JOIN samples s ON s.frame_id = f.id
WHERE
    f.session_id = ?
GROUP BY f.channel, s.node_id
ORDER BY f.channel, s.node_id`
)
