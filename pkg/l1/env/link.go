package env

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/golang/glog"

	fx "github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/framework"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/comm"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/pdu"
	l1comm "github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l1/comm"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l1/comm/mqtt"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l1/comm/serial"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l1/comm/websocket"
)

// Mode selects how a link is attached.
type Mode int

const (
	// ModeHost attaches as the requesting side.
	ModeHost Mode = iota
	// ModePeripheral attaches as the responding side.
	ModePeripheral
	// ModeMonitor only listens.
	ModeMonitor
)

// Conn is an opened byte channel.
type Conn struct {
	io.ReadWriter
	Name string
	// SwitchDirection is set for half-duplex lines.
	SwitchDirection func(pdu.Direction)
	// Runners must run while the Conn is used.
	Runners []fx.Runnable

	closers []io.Closer
	// redial is set when Dial can open the channel again.
	redial bool
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

// Close closes the channel.
func (c *Conn) Close() error {
	var errs fx.AggregatedError
	if closer, ok := c.ReadWriter.(io.Closer); ok {
		errs.Add(closer.Close())
	}
	for _, closer := range c.closers {
		errs.Add(closer.Close())
	}
	return errs.Aggregate()
}

// Dial opens the channel of the link URL.
func (c *Config) Dial(ctx context.Context, mode Mode) (*Conn, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid link URL: %v", err)
	}
	conn := &Conn{Name: c.Name}
	listen, _ := strconv.ParseBool(u.Query().Get("listen"))
	switch u.Scheme {
	case "serial":
		port, err := serial.OpenURL(u)
		if err != nil {
			return nil, err
		}
		conn.ReadWriter, conn.SwitchDirection = port, port.SwitchDirection
		conn.Name = port.Path
		conn.redial = true
	case "tcp":
		var nc net.Conn
		if listen {
			nc, err = acceptTCP(ctx, u.Host)
		} else {
			var d net.Dialer
			nc, err = d.DialContext(ctx, "tcp", u.Host)
		}
		if err != nil {
			return nil, err
		}
		conn.ReadWriter, conn.redial = nc, !listen
	case "mqtt", "mqtts":
		return c.dialMQTT(u, mode)
	case "ws", "wss":
		var rw *websocket.ReadWriter
		if listen {
			rw, err = websocket.Accept(ctx, u)
		} else {
			rw, err = websocket.Dial(u)
		}
		if err != nil {
			return nil, err
		}
		conn.ReadWriter = l1comm.NewPacketStream(rw)
	default:
		return nil, fmt.Errorf("%q: %w", u.Scheme, ErrUnknownScheme)
	}
	return conn, nil
}

func (c *Config) dialMQTT(u *url.URL, mode Mode) (*Conn, error) {
	opts := mqtt.ClientOptions(u)
	prefix := strings.TrimPrefix(u.Path, "/")
	name := u.Query().Get("name")
	if name == "" {
		name = c.Name
	}
	if mode == ModePeripheral {
		mqtt.SetMetaWill(opts, prefix, name)
		if opts.ClientID == "" {
			opts.SetClientID("heaviside:" + name)
		}
	}
	q := mqtt.NewQueue(opts, prefix)
	if mode == ModePeripheral {
		mqtt.Announce(q, name, c.deviceID())
	}
	if err := q.Connect(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", u.Host, err)
	}

	tunnel := mqtt.NewTunnel(q)
	switch mode {
	case ModeHost:
		tunnel.ForHost(name)
	case ModePeripheral:
		tunnel.ForPeripheral(name)
	default:
		tunnel.WithTopics(name+"/+", "")
	}
	conn := &Conn{
		ReadWriter: l1comm.NewPacketStream(tunnel),
		Name:       name,
		Runners:    []fx.Runnable{fx.NamedRun("mqtt:"+name, tunnel)},
	}
	conn.closers = append(conn.closers, closerFunc(func() error {
		if mode == ModePeripheral {
			mqtt.Withdraw(q, name)
		}
		return q.Close()
	}))
	return conn, nil
}

func acceptTCP(ctx context.Context, addr string) (net.Conn, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	defer ln.Close()
	glog.Infof("waiting for link on %s", ln.Addr())
	type accepted struct {
		conn net.Conn
		err  error
	}
	ch := make(chan accepted, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- accepted{conn, err}
	}()
	select {
	case res := <-ch:
		return res.conn, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Env is an opened link with its framer and protocol.
type Env struct {
	Config   *Config
	Conn     *Conn
	Link     *l1comm.Link
	Framer   comm.Framer
	Protocol *pdu.Protocol
}

// Open opens the link and creates the protocol of a side.
func (c *Config) Open(ctx context.Context, side pdu.Side) (*Env, error) {
	if _, err := c.Role(side); err != nil {
		return nil, err
	}
	if _, err := c.FramerConfig(); err != nil {
		return nil, err
	}
	mode := ModeHost
	if side == pdu.SideResponder {
		mode = ModePeripheral
	}
	conn, err := c.Dial(ctx, mode)
	if err != nil {
		return nil, err
	}
	e, err := c.NewEnv(conn, side)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if conn.redial {
		e.Link.Reopen = func() (io.ReadWriter, error) {
			return e.redial(ctx, mode)
		}
	}
	return e, nil
}

// redial opens the channel again after it was closed by the other end.
func (e *Env) redial(ctx context.Context, mode Mode) (io.ReadWriter, error) {
	conn, err := e.Config.Dial(ctx, mode)
	if err != nil {
		return nil, err
	}
	e.Conn.ReadWriter, e.Conn.SwitchDirection = conn.ReadWriter, conn.SwitchDirection
	return conn.ReadWriter, nil
}

// NewEnv creates the framer and protocol of a side over an opened Conn.
func (c *Config) NewEnv(conn *Conn, side pdu.Side) (*Env, error) {
	role, err := c.Role(side)
	if err != nil {
		return nil, err
	}
	framerConf, err := c.FramerConfig()
	if err != nil {
		return nil, err
	}
	if conn.SwitchDirection != nil {
		role.SwitchDirection = func(dir pdu.Direction) {
			if sw := conn.SwitchDirection; sw != nil {
				sw(dir)
			}
		}
	}
	e := &Env{Config: c, Conn: conn, Link: l1comm.NewLink(conn.Name, conn.ReadWriter)}
	e.Framer = e.Link.Framer(framerConf)
	e.Protocol = pdu.New(role, e.Framer)
	glog.Infof("link %s opened: %s %s, %s framer", conn.Name, role.Family, side, framerConf.Design)
	return e, nil
}

// AddToLoop implements fx.LoopAdder.
func (e *Env) AddToLoop(loop *fx.Loop) {
	loop.Add(e.Link)
	loop.AddRunnable(e.Conn.Runners...)
}

// Close closes the link.
func (e *Env) Close() error {
	return e.Conn.Close()
}
