package comm

import (
	"github.com/golang/glog"

	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/ring"
)

// QueuedFramer buffers received bytes in a ring and extracts complete
// frames by searching for delimiters. Outgoing frames are encoded into a
// transmit ring and drained by Execute as the transport has space.
type QueuedFramer struct {
	core

	rx    *ring.Buffer
	tx    *ring.Buffer
	run   []byte
	temp  []byte
	chunk []byte
}

// NewQueuedFramer creates a QueuedFramer.
func NewQueuedFramer(conf Config, t Transport) *QueuedFramer {
	f := &QueuedFramer{}
	f.init(conf, t)
	f.rx = ring.NewBuffer(f.conf.RxSize)
	f.tx = ring.NewBuffer(EncodedSize(f.conf.MaxPacketSize))
	f.run = make([]byte, 0, EncodedSize(f.conf.MaxPacketSize))
	f.temp = make([]byte, 0, f.conf.MaxPacketSize)
	f.chunk = make([]byte, f.conf.TxChunk)
	return f
}

// Start implements Framer.
func (f *QueuedFramer) Start() error {
	return f.start(f.flush)
}

// Stop implements Framer.
func (f *QueuedFramer) Stop() {
	f.stop()
}

// OnBytesReceived implements Receiver.
func (f *QueuedFramer) OnBytesReceived(p []byte) {
	f.lock.Lock()
	for _, b := range p {
		if !f.rx.Enqueue(b) {
			f.dropped++
		}
	}
	f.lock.Unlock()
}

// Send implements Framer.
func (f *QueuedFramer) Send(fields ...[]byte) error {
	if fieldsSize(fields)+crcSize > f.conf.MaxPacketSize {
		return ErrTooLarge
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.canSend(); err != nil {
		return err
	}
	if !f.tx.Empty() {
		return ErrBusy
	}
	f.run = AppendFrame(f.run[:0], fields...)
	f.tx.EnqueueSlice(f.run)
	f.sending = true
	return nil
}

// ChangeChannel implements Framer.
func (f *QueuedFramer) ChangeChannel(ch byte) error {
	f.lock.Lock()
	f.flush()
	f.sending = false
	f.lock.Unlock()
	return f.selectChannel(ch)
}

// Execute implements Framer.
func (f *QueuedFramer) Execute() {
	if !f.checkFault(f.flush) {
		return
	}

	f.lock.Lock()
	n := f.transport.Available()
	if n > len(f.chunk) {
		n = len(f.chunk)
	}
	n = f.tx.DequeueSlice(f.chunk[:n])
	f.lock.Unlock()
	f.sendChunk(f.chunk[:n])

	for {
		f.lock.Lock()
		payload, found := f.extract()
		f.lock.Unlock()
		if !found {
			break
		}
		if payload != nil {
			f.received(payload)
		}
	}

	f.transmitted(func() bool { return !f.tx.Empty() })
}

// extract removes the oldest complete frame from rx. found is false when
// no complete frame is buffered. payload is nil when the frame was invalid.
// Must be called with lock held.
func (f *QueuedFramer) extract() (payload []byte, found bool) {
	for {
		start := f.rx.Search(StartByte)
		if start == ring.NotFound {
			f.rx.Clear()
			return nil, false
		}
		f.rx.Remove(start)

		// A later START before TERMINATE means the frame was cut short.
		end := f.rx.SearchFrom(TerminateByte, 1)
		restart := f.rx.SearchFrom(StartByte, 1)
		if restart != ring.NotFound && (end == ring.NotFound || restart < end) {
			f.rx.Remove(restart)
			continue
		}
		if end == ring.NotFound {
			if f.rx.Full() {
				// Nothing can complete in a full buffer: drop the run and
				// wait for the next start marker.
				glog.V(2).Infof("receive buffer overflow, dropping %d bytes", f.rx.Count())
				f.rx.Clear()
			}
			return nil, false
		}

		f.rx.Remove(1)
		f.run = f.run[:0]
		for i := 0; i < end-1; i++ {
			b, _ := f.rx.Dequeue()
			f.run = append(f.run, b)
		}
		f.rx.Remove(1)

		if len(f.run) > EncodedSize(f.conf.MaxPacketSize) {
			return nil, true
		}
		f.temp = AppendUnescaped(f.temp[:0], f.run)
		if len(f.temp) > f.conf.MaxPacketSize {
			return nil, true
		}
		if payload, ok := payloadOf(f.temp); ok {
			return payload, true
		}
		glog.V(2).Info("frame dropped: bad checksum")
		return nil, true
	}
}

// flush must be called with lock held.
func (f *QueuedFramer) flush() {
	f.rx.Clear()
	f.tx.Clear()
}
