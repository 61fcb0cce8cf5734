package comm

import (
	"io"
	"sync"
)

// PacketReader reads packets in bytes.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}

// PacketStream exposes a PacketReadWriter as a byte stream. Frames may
// span packets, so packet boundaries are not preserved.
type PacketStream struct {
	ReadWriter PacketReadWriter

	readLock sync.Mutex
	pending  []byte
}

// NewPacketStream wraps a PacketReadWriter.
func NewPacketStream(rw PacketReadWriter) *PacketStream {
	return &PacketStream{ReadWriter: rw}
}

// Read implements io.Reader.
func (s *PacketStream) Read(p []byte) (int, error) {
	s.readLock.Lock()
	defer s.readLock.Unlock()
	for len(s.pending) == 0 {
		pkt, err := s.ReadWriter.ReadPacket()
		if err != nil {
			return 0, err
		}
		s.pending = pkt
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Write implements io.Writer.
func (s *PacketStream) Write(p []byte) (int, error) {
	if err := s.ReadWriter.WritePacket(append([]byte(nil), p...)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close implements io.Closer.
func (s *PacketStream) Close() error {
	if closer, ok := s.ReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
