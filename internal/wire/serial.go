package wire

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/roman-kulish/radiosense/internal/rssi"
)

// SinkFrame is the root-to-sink payload (serial_msg_t)
type SinkFrame struct {
	SenderID rssi.NodeID
	Channel  uint8
	RSSI     rssi.Vector
}

// EncodeSinkFrame serialises a sink frame including the serial framing
func (c *Codec) EncodeSinkFrame(f *SinkFrame) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("cannot encode nil frame")
	}
	if len(f.RSSI) != c.NodeCount {
		return nil, fmt.Errorf("%w: vector has %d slots, want %d", ErrNodeCount, len(f.RSSI), c.NodeCount)
	}

	payload := make([]byte, serialPayloadHeaderSize+len(f.RSSI))
	payload[0] = byte(f.SenderID)
	payload[1] = f.Channel
	for i, b := range f.RSSI.Encode(c.Sentinels) {
		payload[serialPayloadHeaderSize+i] = byte(b)
	}

	return EncodeSerial(MsgTypeSerial, payload)
}

// DecodeSinkFrame parses a serial frame body (everything after the length byte)
func (c *Codec) DecodeSinkFrame(body []byte) (*SinkFrame, error) {
	typ, payload, err := DecodeSerialBody(body)
	if err != nil {
		return nil, err
	}
	if typ != MsgTypeSerial {
		return nil, fmt.Errorf("%w: %#02x", ErrUnsupportedType, typ)
	}
	if len(payload) != serialPayloadHeaderSize+c.NodeCount {
		return nil, fmt.Errorf("%w: payload has %d bytes, want %d", ErrNodeCount, len(payload), serialPayloadHeaderSize+c.NodeCount)
	}

	raw := make([]int8, c.NodeCount)
	for i := range raw {
		raw[i] = int8(payload[serialPayloadHeaderSize+i])
	}

	return &SinkFrame{
		SenderID: rssi.NodeID(payload[0]),
		Channel:  payload[1],
		RSSI:     rssi.DecodeVector(raw, c.Sentinels),
	}, nil
}

// EncodeSerial wraps a payload into the serial framing
func EncodeSerial(typ byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrPayloadSize, len(payload), MaxPayloadSize)
	}

	bodyLen := TypeFieldSize + len(payload) + CRCSize + TerminalSize
	data := make([]byte, LengthFieldSize+bodyLen)
	data[0] = byte(bodyLen)
	data[1] = typ
	copy(data[2:], payload)

	crcPos := 2 + len(payload)
	binary.LittleEndian.PutUint32(data[crcPos:crcPos+CRCSize], crc32.ChecksumIEEE(data[1:crcPos]))
	data[len(data)-1] = FrameTerminal

	return data, nil
}

// DecodeSerialBody validates a frame body (the bytes counted by the length
// field) and returns its type and payload
func DecodeSerialBody(body []byte) (byte, []byte, error) {
	if len(body) < TypeFieldSize+CRCSize+TerminalSize {
		return 0, nil, fmt.Errorf("%w: body of %d bytes", ErrShortMessage, len(body))
	}
	if body[len(body)-1] != FrameTerminal {
		return 0, nil, fmt.Errorf("%w: missing terminal", ErrFraming)
	}

	crcPos := len(body) - TerminalSize - CRCSize
	if binary.LittleEndian.Uint32(body[crcPos:crcPos+CRCSize]) != crc32.ChecksumIEEE(body[:crcPos]) {
		return 0, nil, ErrChecksum
	}

	payload := make([]byte, crcPos-TypeFieldSize)
	copy(payload, body[TypeFieldSize:crcPos])
	return body[0], payload, nil
}
