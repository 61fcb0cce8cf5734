package mqtt

import (
	"context"
	"io"
	"sync"
)

// Tunnel carries link bytes over a pair of topics. It implements
// PacketReadWriter and Runnable.
type Tunnel struct {
	Queue    *Queue
	SubTopic string
	PubTopic string

	packetCh chan []byte
	closeCh  chan struct{}
	once     sync.Once
}

// NewTunnel creates the Tunnel.
func NewTunnel(q *Queue) *Tunnel {
	return &Tunnel{
		Queue:    q,
		packetCh: make(chan []byte, 16),
		closeCh:  make(chan struct{}),
	}
}

// WithTopics specifies the topics.
func (t *Tunnel) WithTopics(sub, pub string) *Tunnel {
	t.SubTopic, t.PubTopic = sub, pub
	return t
}

// ForHost sets topics using the convention for the requesting side:
// SubTopic = name/up
// PubTopic = name/down
func (t *Tunnel) ForHost(name string) *Tunnel {
	return t.WithTopics(name+"/up", name+"/down")
}

// ForPeripheral sets topics using the convention for the responding side:
// SubTopic = name/down
// PubTopic = name/up
func (t *Tunnel) ForPeripheral(name string) *Tunnel {
	return t.WithTopics(name+"/down", name+"/up")
}

// ReadPacket implements PacketReader.
func (t *Tunnel) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-t.packetCh:
		return pkt, nil
	case <-t.closeCh:
		return nil, io.EOF
	}
}

// WritePacket implements PacketWriter.
func (t *Tunnel) WritePacket(pkt []byte) error {
	token := t.Queue.Pub(t.PubTopic, pkt)
	token.Wait()
	return token.Error()
}

// Run implements Runnable.
func (t *Tunnel) Run(ctx context.Context) error {
	sub := t.Queue.Sub(t.SubTopic, Handler(t.handleMsg))
	defer sub.Close()
	defer t.Close()
	<-ctx.Done()
	return ctx.Err()
}

// Close implements io.Closer, pending ReadPacket returns io.EOF.
func (t *Tunnel) Close() error {
	t.once.Do(func() { close(t.closeCh) })
	return nil
}

func (t *Tunnel) handleMsg(_ string, payload []byte) {
	select {
	case t.packetCh <- payload:
	case <-t.closeCh:
	}
}
