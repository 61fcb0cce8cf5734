// Package commtest provides in-memory transports for testing framers and
// the layers above them.
package commtest

import (
	"sync"

	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/comm"
)

// Link is an in-memory comm.Transport. Bytes sent on a Link are delivered
// to the Receiver of its peer.
type Link struct {
	// Recv is the framer on this end.
	Recv comm.Receiver
	Peer *Link
	// Space is reported as transmit space.
	Space int
	// Mute discards outgoing bytes instead of delivering them.
	Mute bool
	// SendErr is returned by Send when set.
	SendErr error
	// StartErr is returned by Start when set.
	StartErr error

	lock    sync.Mutex
	sent    []byte
	started int
	stopped int
	channel int
}

// Pair creates two connected links.
func Pair() (*Link, *Link) {
	a, b := &Link{Space: 64}, &Link{Space: 64}
	a.Peer, b.Peer = b, a
	return a, b
}

// Start implements comm.Transport.
func (l *Link) Start() error {
	if l.StartErr != nil {
		return l.StartErr
	}
	l.lock.Lock()
	l.started++
	l.lock.Unlock()
	l.Recv.OnTransmitReady(l.Space)
	return nil
}

// Stop implements comm.Transport.
func (l *Link) Stop() {
	l.lock.Lock()
	l.stopped++
	l.lock.Unlock()
}

// Send implements comm.Transport.
func (l *Link) Send(p []byte) error {
	if l.SendErr != nil {
		return l.SendErr
	}
	l.lock.Lock()
	l.sent = append(l.sent, p...)
	l.lock.Unlock()
	if !l.Mute && l.Peer != nil && l.Peer.Recv != nil {
		l.Peer.Recv.OnBytesReceived(append([]byte(nil), p...))
	}
	l.Recv.OnTransmitCompleted()
	l.Recv.OnTransmitReady(l.Space)
	return nil
}

// Available implements comm.Transport.
func (l *Link) Available() int {
	return l.Space
}

// SelectChannel implements comm.ChannelSelector.
func (l *Link) SelectChannel(ch byte) error {
	l.lock.Lock()
	l.channel = int(ch)
	l.lock.Unlock()
	return nil
}

// Sent returns and clears the bytes sent so far.
func (l *Link) Sent() []byte {
	l.lock.Lock()
	defer l.lock.Unlock()
	p := l.sent
	l.sent = nil
	return p
}

// Frames decodes the bytes sent so far into frame payloads and clears them.
func (l *Link) Frames() [][]byte {
	var frames [][]byte
	var p comm.Parser
	for _, b := range l.Sent() {
		if res := p.Parse(b); res.Payload != nil {
			frames = append(frames, append([]byte(nil), res.Payload...))
		}
	}
	return frames
}

// Inject delivers raw bytes to the framer on this end.
func (l *Link) Inject(p ...byte) {
	l.Recv.OnBytesReceived(p)
}

// Channel returns the last selected channel.
func (l *Link) Channel() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.channel
}

// Started returns how many times Start was called.
func (l *Link) Started() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.started
}

// Stopped returns how many times Stop was called.
func (l *Link) Stopped() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.stopped
}
