package sh

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang/glog"

	fx "github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/framework"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/client"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/pdu"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l1/comm/mqtt"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l1/env"
)

var (
	// ErrNoResponse indicates a request exhausted its retries.
	ErrNoResponse = errors.New("no response")
	// ErrSessionClosed indicates the session loop has stopped.
	ErrSessionClosed = errors.New("session closed")
)

// Result ops not naming a request.
const (
	// OpConnection reports a connection state change.
	OpConnection = "connection"
	// OpLink reports a transport error.
	OpLink = "link"
)

// Result is the outcome reported by a client callback.
type Result struct {
	Op        string `json:"op"`
	Slot      byte   `json:"slot"`
	ID        byte   `json:"id"`
	Channel   byte   `json:"channel"`
	Data      string `json:"data,omitempty"`
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

func resultOf(req *client.Request, err error) *Result {
	res := &Result{Op: req.Op.String(), Slot: req.Slot, ID: req.ID, Channel: req.Channel}
	if req.Op == pdu.OpRead && err == nil {
		res.Data = hex.EncodeToString(req.Data)
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// Answers reports whether r is the outcome of a request of op. A
// transport error answers any request.
func (r *Result) Answers(op pdu.Op) bool {
	switch r.Op {
	case op.String(), OpLink:
		return true
	case OpConnection:
		return op == pdu.OpConnect && r.Connected || op == pdu.OpDisconnect && !r.Connected
	}
	return false
}

// String implements fmt.Stringer.
func (r *Result) String() string {
	switch {
	case r.Error != "":
		return fmt.Sprintf("%s: %s", r.Op, r.Error)
	case r.Op == OpConnection:
		if r.Connected {
			return "connected"
		}
		return "disconnected"
	case r.Op == pdu.OpCheck.String():
		return fmt.Sprintf("channel %d: %s", r.Channel, r.Data)
	case r.Op == pdu.OpRead.String():
		return fmt.Sprintf("%d/%d: %s", r.Slot, r.ID, r.Data)
	}
	return "OK"
}

// Session is a running client over an opened link.
type Session struct {
	Env    *env.Env
	Client *client.Client
	Loop   *fx.Loop
	// Timeout bounds the wait for a request outcome.
	Timeout time.Duration

	cancel   func()
	doneCh   chan struct{}
	resultCh chan *Result
}

// OpenSession opens the link of conf and starts a client over it.
func OpenSession(conf *env.Config) (*Session, error) {
	ctx, cancel := context.WithCancel(context.Background())
	e, err := conf.Open(ctx, pdu.SideRequester)
	if err != nil {
		cancel()
		return nil, err
	}
	sess, err := newSession(ctx, cancel, conf, e)
	if err != nil {
		e.Close()
		return nil, err
	}
	return sess, nil
}

// NewSession starts a client over an opened Env.
func NewSession(conf *env.Config, e *env.Env) (*Session, error) {
	ctx, cancel := context.WithCancel(context.Background())
	return newSession(ctx, cancel, conf, e)
}

func newSession(ctx context.Context, cancel func(), conf *env.Config, e *env.Env) (*Session, error) {
	cc := conf.ClientConfig()
	retries := cc.MaxTimeouts
	if cc.MaxCheckTimeouts > retries {
		retries = cc.MaxCheckTimeouts
	}
	s := &Session{
		Env:      e,
		Client:   client.New(cc, e.Protocol),
		Loop:     fx.NewLoop(),
		Timeout:  cc.Timeout*time.Duration(retries+2) + time.Second,
		cancel:   cancel,
		doneCh:   make(chan struct{}),
		resultCh: make(chan *Result, 16),
	}
	if conf.Interval > 0 {
		s.Loop.Interval = conf.Interval
	}
	s.Client.Callbacks = client.Callbacks{
		ReadComplete: func(req *client.Request) {
			s.push(resultOf(req, nil))
		},
		WriteComplete: func(req *client.Request) {
			s.push(resultOf(req, nil))
		},
		OperationFailed: func(req *client.Request, err error) {
			s.pushRequest(req, err)
		},
		NoResponse: func(req *client.Request) {
			s.pushRequest(req, ErrNoResponse)
		},
		ConnectionStateChanged: func(connected bool) {
			s.push(&Result{Op: OpConnection, Connected: connected})
		},
		CheckResult: func(channel byte, data []byte) {
			s.push(&Result{Op: pdu.OpCheck.String(), Channel: channel, Data: hex.EncodeToString(data)})
		},
		PollResponse: func(req *client.Request) {
			s.pushRequest(req, nil)
		},
		ErrorOccurred: func(wasConnected bool) {
			glog.Warningf("link %s error, was connected: %v", e.Conn.Name, wasConnected)
			s.push(&Result{Op: OpLink, Error: "transport error"})
		},
	}
	s.Loop.Add(e).AddExecutor(s.Client)
	if err := s.Client.Start(); err != nil {
		cancel()
		return nil, err
	}
	go func() {
		defer close(s.doneCh)
		if err := s.Loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			glog.Errorf("session loop: %v", err)
		}
	}()
	return s, nil
}

func (s *Session) push(res *Result) {
	select {
	case s.resultCh <- res:
	default:
		glog.Warningf("result dropped: %s", res)
	}
}

// pushRequest pushes the outcome of a user request. Keep-alive polls
// are not reported.
func (s *Session) pushRequest(req *client.Request, err error) {
	if req.KeepAlive {
		glog.V(2).Infof("keep-alive %s: %v", req, err)
		return
	}
	s.push(resultOf(req, err))
}

func (s *Session) drain() {
	for {
		select {
		case <-s.resultCh:
		default:
			return
		}
	}
}

// Do runs fn on the loop goroutine.
func (s *Session) Do(ctx context.Context, fn func(*client.Client) error) error {
	errCh := make(chan error, 1)
	s.Loop.Post(func() { errCh <- fn(s.Client) })
	select {
	case err := <-errCh:
		return err
	case <-s.doneCh:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Request enqueues a request of op and waits for its outcome. Results
// not answering op are skipped.
func (s *Session) Request(ctx context.Context, op pdu.Op, enqueue func(*client.Client) error) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	s.drain()
	if err := s.Do(ctx, enqueue); err != nil {
		return nil, err
	}
	for {
		select {
		case res := <-s.resultCh:
			if res.Answers(op) {
				return res, nil
			}
			glog.V(2).Infof("skip %s while waiting for %s", res, op)
		case <-s.doneCh:
			return nil, ErrSessionClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Restart recovers the client from an error and starts it again.
func (s *Session) Restart(ctx context.Context) error {
	return s.Do(ctx, func(c *client.Client) error {
		c.Recover()
		return c.Start()
	})
}

// Close stops the loop and closes the link.
func (s *Session) Close() error {
	select {
	case <-s.doneCh:
	default:
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := s.Loop.Do(ctx, s.Client.Stop); err != nil {
			glog.V(2).Infof("stop client: %v", err)
		}
		cancel()
	}
	s.cancel()
	<-s.doneCh
	return s.Env.Close()
}

// Discover lists peripherals announced on the MQTT broker of linkURL.
func Discover(ctx context.Context, linkURL string, timeout time.Duration) ([]mqtt.Peer, error) {
	u, err := url.Parse(linkURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "mqtt" && u.Scheme != "mqtts" {
		return nil, fmt.Errorf("discover requires an mqtt link, got %q", u.Scheme)
	}
	u.RawQuery = ""
	q, err := mqtt.NewQueueFromURL(u.String())
	if err != nil {
		return nil, err
	}
	if err := q.Connect(); err != nil {
		return nil, err
	}
	defer q.Close()
	return mqtt.Discover(ctx, q, timeout)
}
