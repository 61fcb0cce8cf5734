// Package websocket tunnels link bytes over websocket binary messages.
package websocket

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"
)

// ReadWriter implements PacketReadWriter.
type ReadWriter struct {
	Conn *websocket.Conn

	done chan struct{}
	once sync.Once
}

// New wraps websocket.Conn.
func New(conn *websocket.Conn) *ReadWriter {
	return &ReadWriter{Conn: conn}
}

// Dial connects to a websocket server.
func Dial(u *url.URL) (*ReadWriter, error) {
	origin := &url.URL{Scheme: "http", Host: u.Host}
	if u.Scheme == "wss" {
		origin.Scheme = "https"
	}
	conn, err := websocket.Dial(u.String(), "", origin.String())
	if err != nil {
		return nil, err
	}
	glog.Infof("websocket %s connected", u)
	return New(conn), nil
}

// Accept listens on the URL host and returns the first connection on the
// URL path. The listener is closed once accepted or ctx is done.
func Accept(ctx context.Context, u *url.URL) (*ReadWriter, error) {
	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, err
	}
	connCh := make(chan *websocket.Conn, 1)
	doneCh := make(chan struct{})
	path := u.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.Handle(path, websocket.Handler(func(conn *websocket.Conn) {
		select {
		case connCh <- conn:
			// keep the handler alive while the link uses conn.
			<-doneCh
		default:
			glog.Warningf("websocket %s: link busy, reject %s", u, conn.Request().RemoteAddr)
		}
	}))
	server := &http.Server{Handler: mux}
	go server.Serve(ln)
	glog.Infof("websocket listening on %s%s", ln.Addr(), path)

	select {
	case conn := <-connCh:
		ln.Close()
		rw := New(conn)
		rw.done = doneCh
		return rw, nil
	case <-ctx.Done():
		close(doneCh)
		server.Close()
		return nil, ctx.Err()
	}
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() (pkt []byte, err error) {
	err = websocket.Message.Receive(p.Conn, &pkt)
	return
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	return websocket.Message.Send(p.Conn, pkt)
}

// Close implements io.Closer.
func (p *ReadWriter) Close() error {
	err := p.Conn.Close()
	if p.done != nil {
		p.once.Do(func() { close(p.done) })
	}
	return err
}
