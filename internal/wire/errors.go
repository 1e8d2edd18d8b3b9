package wire

import "errors"

var (
	ErrShortMessage    = errors.New("message too short")
	ErrChecksum        = errors.New("checksum mismatch")
	ErrUnsupportedType = errors.New("unsupported message type")
	ErrNodeCount       = errors.New("node count mismatch")
	ErrFraming         = errors.New("invalid framing")
	ErrPayloadSize     = errors.New("invalid payload size")
)
