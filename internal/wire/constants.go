package wire

// Protocol constants shared by the radio and the serial link.
//
// Message type tags are protocol version tags: bump them whenever the layout of
// the corresponding struct changes.
const (
	// MsgTypeRSSILegacy is the older rssi-only radio layout. No longer accepted.
	MsgTypeRSSILegacy = 0x01

	// MsgTypeRSSI is the current radio layout:
	//   Type(1) | Sender(1) | Origin(1) | Channel(1) | Seq(4) | Count(1) | RSSI(Count) | CRC32(4)
	MsgTypeRSSI = 0x02

	// MsgTypeSerial is the sink-bound frame payload:
	//   SenderID(1) | Channel(1) | RSS(NodeCount)
	MsgTypeSerial = 0x02

	// Radio message sizing
	messageHeaderSize = 9
	CRCSize           = 4

	// Serial framing:
	//   Length(1) | Type(1) | Payload | CRC32(4) | Terminal(1)
	// Length counts everything after the length byte.
	LengthFieldSize = 1
	TypeFieldSize   = 1
	TerminalSize    = 1
	MaxSerialSize   = 255

	serialPayloadHeaderSize = 2

	// MaxPayloadSize is the largest payload a serial frame can carry
	MaxPayloadSize = MaxSerialSize - LengthFieldSize - TypeFieldSize - CRCSize - TerminalSize

	// FrameTerminal is appended to the end of every serial frame
	FrameTerminal = 0x55

	// MaxNodeCount is the largest fleet both layouts can describe
	MaxNodeCount = 128
)
