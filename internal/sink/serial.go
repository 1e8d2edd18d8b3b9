package sink

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/roman-kulish/radiosense/internal/protocol"
	"github.com/roman-kulish/radiosense/internal/wire"
)

// Stdout is the path that selects the process standard output
const Stdout = "-"

// Serial writes aggregated frames to the host link using the serial framing
type Serial struct {
	mu    sync.Mutex
	w     io.Writer
	codec *wire.Codec
}

func NewSerial(w io.Writer, codec *wire.Codec) *Serial {
	return &Serial{w: w, codec: codec}
}

// SendFrame implements protocol.FrameSink
func (s *Serial) SendFrame(f *protocol.AggregatedFrame) error {
	data, err := s.codec.EncodeSinkFrame(&wire.SinkFrame{
		SenderID: f.SenderID,
		Channel:  f.Channel,
		RSSI:     f.RSSI,
	})
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err = s.w.Write(data); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// OpenDevice opens the host link for writing: a serial device node, a named
// pipe or a plain file. Stdout selects the process standard output.
func OpenDevice(path string) (io.WriteCloser, error) {
	if path == Stdout {
		return nopCloser{os.Stdout}, nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
