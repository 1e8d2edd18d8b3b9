package wire

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/roman-kulish/radiosense/internal/rssi"
)

// Message is a node-to-node RSSI flood message (msg_rssi_t).
// Sender is the node that put this copy on air, Origin is the node whose beacon
// started the flood. Seq is the epoch the vector belongs to.
type Message struct {
	Sender  rssi.NodeID
	Origin  rssi.NodeID
	Channel uint8
	Seq     uint32
	RSSI    rssi.Vector
}

// Codec encodes and decodes messages for a fleet of fixed size
type Codec struct {
	NodeCount int
	Sentinels rssi.Sentinels
}

// NewCodec creates a codec for the given fleet size and sentinel values
func NewCodec(nodeCount int, sentinels rssi.Sentinels) (*Codec, error) {
	if nodeCount <= 0 || nodeCount > MaxNodeCount {
		return nil, fmt.Errorf("invalid node count %d: must be within 1..%d", nodeCount, MaxNodeCount)
	}
	if err := sentinels.Validate(); err != nil {
		return nil, err
	}
	return &Codec{NodeCount: nodeCount, Sentinels: sentinels}, nil
}

// EncodeMessage serialises a message into on-air bytes
func (c *Codec) EncodeMessage(m *Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("cannot encode nil message")
	}
	if len(m.RSSI) != c.NodeCount {
		return nil, fmt.Errorf("%w: vector has %d slots, want %d", ErrNodeCount, len(m.RSSI), c.NodeCount)
	}

	size := messageHeaderSize + len(m.RSSI) + CRCSize
	data := make([]byte, size)
	data[0] = MsgTypeRSSI
	data[1] = byte(m.Sender)
	data[2] = byte(m.Origin)
	data[3] = m.Channel
	binary.LittleEndian.PutUint32(data[4:8], m.Seq)
	data[8] = byte(len(m.RSSI))

	for i, b := range m.RSSI.Encode(c.Sentinels) {
		data[messageHeaderSize+i] = byte(b)
	}

	crcPos := size - CRCSize
	binary.LittleEndian.PutUint32(data[crcPos:], crc32.ChecksumIEEE(data[:crcPos]))

	return data, nil
}

// DecodeMessage parses on-air bytes into a message
func (c *Codec) DecodeMessage(data []byte) (*Message, error) {
	if len(data) < messageHeaderSize+CRCSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortMessage, len(data))
	}

	switch data[0] {
	case MsgTypeRSSI:
	case MsgTypeRSSILegacy:
		return nil, fmt.Errorf("%w: legacy type %#02x", ErrUnsupportedType, data[0])
	default:
		return nil, fmt.Errorf("%w: %#02x", ErrUnsupportedType, data[0])
	}

	count := int(data[8])
	size := messageHeaderSize + count + CRCSize
	if len(data) < size {
		return nil, fmt.Errorf("%w: %d bytes, header declares %d", ErrShortMessage, len(data), size)
	}

	crcPos := size - CRCSize
	if binary.LittleEndian.Uint32(data[crcPos:size]) != crc32.ChecksumIEEE(data[:crcPos]) {
		return nil, ErrChecksum
	}
	if count != c.NodeCount {
		return nil, fmt.Errorf("%w: message has %d slots, want %d", ErrNodeCount, count, c.NodeCount)
	}

	raw := make([]int8, count)
	for i := range raw {
		raw[i] = int8(data[messageHeaderSize+i])
	}

	return &Message{
		Sender:  rssi.NodeID(data[1]),
		Origin:  rssi.NodeID(data[2]),
		Channel: data[3],
		Seq:     binary.LittleEndian.Uint32(data[4:8]),
		RSSI:    rssi.DecodeVector(raw, c.Sentinels),
	}, nil
}
