package comm

import (
	"github.com/golang/glog"

	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/ring"
)

// StreamFramer runs received bytes through a Parser one at a time.
// Outgoing frames are encoded into an outbox on Send and drained when the
// transport reports it is ready to transmit.
type StreamFramer struct {
	core

	inbox  *ring.Buffer
	parser Parser
	rxBuf  []byte
	outbox []byte
	outIdx int
}

// NewStreamFramer creates a StreamFramer.
func NewStreamFramer(conf Config, t Transport) *StreamFramer {
	f := &StreamFramer{}
	f.init(conf, t)
	f.inbox = ring.NewBuffer(f.conf.RxSize)
	f.parser.MaxSize = f.conf.MaxPacketSize
	f.rxBuf = make([]byte, f.inbox.Cap())
	f.outbox = make([]byte, 0, EncodedSize(f.conf.MaxPacketSize))
	return f
}

// Start implements Framer.
func (f *StreamFramer) Start() error {
	return f.start(f.flush)
}

// Stop implements Framer.
func (f *StreamFramer) Stop() {
	f.stop()
}

// OnBytesReceived implements Receiver.
func (f *StreamFramer) OnBytesReceived(p []byte) {
	f.lock.Lock()
	for _, b := range p {
		if !f.inbox.Enqueue(b) {
			f.dropped++
		}
	}
	f.lock.Unlock()
}

// Send implements Framer.
func (f *StreamFramer) Send(fields ...[]byte) error {
	if fieldsSize(fields)+crcSize > f.conf.MaxPacketSize {
		return ErrTooLarge
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.canSend(); err != nil {
		return err
	}
	if f.outIdx < len(f.outbox) {
		return ErrBusy
	}
	f.outbox = AppendFrame(f.outbox[:0], fields...)
	f.outIdx = 0
	f.sending = true
	return nil
}

// ChangeChannel implements Framer.
func (f *StreamFramer) ChangeChannel(ch byte) error {
	f.lock.Lock()
	f.flush()
	f.sending = false
	f.lock.Unlock()
	return f.selectChannel(ch)
}

// Execute implements Framer.
func (f *StreamFramer) Execute() {
	if !f.checkFault(f.flush) {
		return
	}

	f.lock.Lock()
	n := f.inbox.DequeueSlice(f.rxBuf)
	f.lock.Unlock()
	for _, b := range f.rxBuf[:n] {
		pr := f.parser.Parse(b)
		if pr.Payload != nil {
			f.received(pr.Payload)
		} else if pr.Drop != DropNone {
			glog.V(2).Infof("frame dropped: %s", pr.Drop)
		}
	}

	f.lock.Lock()
	var chunk []byte
	if space := f.txSpace; space > 0 && f.outIdx < len(f.outbox) {
		n := len(f.outbox) - f.outIdx
		if n > space {
			n = space
		}
		if n > f.conf.MaxPacketSize {
			n = f.conf.MaxPacketSize
		}
		chunk = f.outbox[f.outIdx : f.outIdx+n]
		f.outIdx += n
		f.txSpace = 0
	}
	f.lock.Unlock()
	f.sendChunk(chunk)

	f.transmitted(func() bool { return f.outIdx < len(f.outbox) })
}

// flush must be called with lock held.
func (f *StreamFramer) flush() {
	f.inbox.Clear()
	f.parser.Reset()
	f.outbox, f.outIdx = f.outbox[:0], 0
}
