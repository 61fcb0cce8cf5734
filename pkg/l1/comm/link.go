// Package comm binds L0 framers to real byte channels.
package comm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/golang/glog"

	fx "github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/framework"
	l0 "github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/comm"
)

// DefaultSpace is the default transmit space reported by a Link.
const DefaultSpace = 64

// ErrLinkStopped indicates Send was called on a stopped Link.
var ErrLinkStopped = errors.New("link stopped")

// Link adapts an io.ReadWriter to l0 Transport. Run pumps received bytes
// into the Receiver, Send writes synchronously.
//
// A read error is reported to the Receiver and parks the pump until the
// next Start. Start resumes reading, through Reopen when the channel is
// closed for good.
type Link struct {
	Name     string
	Conn     io.ReadWriter
	Receiver l0.Receiver
	// Space is the transmit space reported to the framer.
	Space int
	// Notify is called after bytes are received, e.g. Loop.TriggerNext.
	Notify func()
	// Reopen replaces a closed Conn. Nil means a closed Conn can't be
	// restarted.
	Reopen func() (io.ReadWriter, error)

	lock     sync.Mutex
	started  bool
	readErr  error
	resumeCh chan struct{}
}

// NewLink creates a Link over conn.
func NewLink(name string, conn io.ReadWriter) *Link {
	return &Link{Name: name, Conn: conn, Space: DefaultSpace, resumeCh: make(chan struct{}, 1)}
}

// Framer creates a framer over the link and binds it as Receiver.
func (l *Link) Framer(conf l0.Config) l0.Framer {
	f := l0.New(conf, l)
	l.Receiver = f
	return f
}

// Start implements l0.Transport.
func (l *Link) Start() error {
	l.lock.Lock()
	if err := l.resume(); err != nil {
		l.lock.Unlock()
		return err
	}
	l.started = true
	l.lock.Unlock()
	glog.Infof("link %s started", l.Name)
	l.Receiver.OnTransmitReady(l.space())
	return nil
}

// resume restarts a parked pump. It must be called with lock held.
func (l *Link) resume() error {
	if l.readErr == nil {
		return nil
	}
	if IsClosed(l.readErr) {
		if l.Reopen == nil {
			return fmt.Errorf("link %s: %w", l.Name, l.readErr)
		}
		conn, err := l.Reopen()
		if err != nil {
			return fmt.Errorf("link %s reopen: %w", l.Name, err)
		}
		glog.Infof("link %s reopened", l.Name)
		if closer, ok := l.Conn.(io.Closer); ok {
			closer.Close()
		}
		l.Conn = conn
	}
	l.readErr = nil
	select {
	case l.resumeCh <- struct{}{}:
	default:
	}
	return nil
}

// IsClosed reports whether err means the channel can't be read again.
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed)
}

// Stop implements l0.Transport.
func (l *Link) Stop() {
	l.lock.Lock()
	l.started = false
	l.lock.Unlock()
	glog.Infof("link %s stopped", l.Name)
}

// Send implements l0.Transport.
func (l *Link) Send(p []byte) error {
	if !l.isStarted() {
		return ErrLinkStopped
	}
	if glog.V(4) {
		glog.Infof("%s TX % x", l.Name, p)
	}
	if _, err := l.conn().Write(p); err != nil {
		return err
	}
	l.Receiver.OnTransmitCompleted()
	l.Receiver.OnTransmitReady(l.space())
	return nil
}

// Available implements l0.Transport.
func (l *Link) Available() int {
	if !l.isStarted() {
		return 0
	}
	return l.space()
}

// SelectChannel implements l0.ChannelSelector when Conn does.
func (l *Link) SelectChannel(ch byte) error {
	if sel, ok := l.conn().(l0.ChannelSelector); ok {
		return sel.SelectChannel(ch)
	}
	glog.V(2).Infof("link %s has no channels, ignore channel %d", l.Name, ch)
	return nil
}

// String implements fmt.Stringer.
func (l *Link) String() string {
	return l.Name
}

// Run implements fx.Runnable. It returns only when ctx is done.
func (l *Link) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		l.closeConn()
	}()
	buf := make([]byte, 256)
	for {
		err := l.read(l.conn(), buf)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !l.park(err) {
			glog.Warningf("link %s read: %v", l.Name, err)
			l.Receiver.OnTransportError(err)
			if fn := l.Notify; fn != nil {
				fn()
			}
		}
		select {
		case <-l.resumeCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Link) read(conn io.Reader, buf []byte) error {
	for {
		n, err := conn.Read(buf)
		if n > 0 && l.isStarted() {
			if glog.V(4) {
				glog.Infof("%s RX % x", l.Name, buf[:n])
			}
			l.Receiver.OnBytesReceived(buf[:n])
			if fn := l.Notify; fn != nil {
				fn()
			}
		}
		if err != nil {
			return err
		}
	}
}

// park records a read error and reports whether the link was stopped.
// A stopped link resumes on the next Start without a transport error.
func (l *Link) park(err error) bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.readErr = err
	return !l.started
}

func (l *Link) closeConn() {
	if closer, ok := l.conn().(io.Closer); ok {
		closer.Close()
	}
}

// AddToLoop implements fx.LoopAdder.
func (l *Link) AddToLoop(loop *fx.Loop) {
	if l.Notify == nil {
		l.Notify = loop.TriggerNext
	}
	loop.AddRunnable(fx.NamedRun(l.Name, l))
}

func (l *Link) conn() io.ReadWriter {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.Conn
}

func (l *Link) isStarted() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.started
}

func (l *Link) space() int {
	if l.Space <= 0 {
		return DefaultSpace
	}
	return l.Space
}
