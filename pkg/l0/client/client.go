// Package client implements the requesting side of a link: a bounded queue
// of pending requests serviced one transaction at a time with timeouts,
// retries, keep-alive polling and channel changes.
package client

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"

	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/comm"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/pdu"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/ring"
)

// NoSlot is passed to SelectSlot when no transaction is outstanding.
const NoSlot byte = 0xFF

// OpChangeChannel is a local request switching the transport channel.
// It is never sent to the peer.
const OpChangeChannel pdu.Op = 0x40

// Request is a pending request.
type Request struct {
	// Slot is the peer address or slot. Unaddressed roles ignore it.
	Slot byte
	// ID is the characteristic or object id of READ and WRITE.
	ID byte
	Op pdu.Op
	// Channel is the target of OpChangeChannel.
	Channel byte
	// Data is the payload of WRITE and the destination of READ. It is
	// owned by the caller and must stay valid until the request resolves.
	Data []byte
	// KeepAlive marks a POLL the client sent on its own.
	KeepAlive bool
}

// String implements fmt.Stringer.
func (r Request) String() string {
	switch r.Op {
	case OpChangeChannel:
		return fmt.Sprintf("change-channel %d", r.Channel)
	case pdu.OpRead, pdu.OpWrite:
		return fmt.Sprintf("%s slot=%d id=%d len=%d", r.Op, r.Slot, r.ID, len(r.Data))
	}
	return fmt.Sprintf("%s slot=%d", r.Op, r.Slot)
}

// Callbacks are invoked from Execute. All of them are optional.
type Callbacks struct {
	// ReadComplete reports a successful READ. req.Data is trimmed to the
	// received size.
	ReadComplete func(req *Request)
	// WriteComplete reports a successful WRITE.
	WriteComplete func(req *Request)
	// OperationFailed reports a request refused by the peer or not allowed
	// in the current connection state.
	OperationFailed func(req *Request, err error)
	// NoResponse reports a request which exhausted its retries.
	NoResponse func(req *Request)
	// ConnectionStateChanged reports connect and disconnect.
	ConnectionStateChanged func(connected bool)
	// Idle is called when there's nothing to send.
	Idle func()
	// CheckResult reports a CHECK response. data is only valid during
	// the call.
	CheckResult func(channel byte, data []byte)
	// PollResponse reports a POLL response.
	PollResponse func(req *Request)
	// ErrorOccurred reports a transport fault.
	ErrorOccurred func(wasConnected bool)
	// SelectSlot is called with the request slot before every send and
	// with NoSlot when the transaction resolves.
	SelectSlot func(slot byte)
}

// Config configures a Client.
type Config struct {
	// Timeout is the time to wait for a response before retrying.
	Timeout time.Duration
	// MaxTimeouts is the number of retries before NoResponse.
	MaxTimeouts int
	// MaxCheckTimeouts replaces MaxTimeouts for CHECK.
	MaxCheckTimeouts int
	// PollPeriod is the keep-alive interval while connected. Zero disables
	// keep-alive polling.
	PollPeriod time.Duration
	// ChannelAwait is the quiet window after a channel change.
	ChannelAwait time.Duration
	// QueueSize is the capacity of the pending request queue.
	QueueSize int
	// Clock is the time source, the wall clock if nil.
	Clock clock.Clock
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:          500 * time.Millisecond,
		MaxTimeouts:      5,
		MaxCheckTimeouts: 2,
		PollPeriod:       100 * time.Second,
		ChannelAwait:     6 * time.Second,
		QueueSize:        32,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxTimeouts < 0 {
		c.MaxTimeouts = 0
	}
	if c.MaxCheckTimeouts < 0 {
		c.MaxCheckTimeouts = 0
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

// Client is the transaction engine of the requesting side.
type Client struct {
	Callbacks Callbacks

	conf  Config
	proto *pdu.Protocol
	// connOriented enables connection state gating and keep-alive.
	connOriented bool

	lock      sync.Mutex
	queue     *ring.Queue[Request]
	connected bool

	cache    Request
	waiting  bool
	sentAt   time.Time
	timeouts int
	polledAt time.Time
	quiet    bool
	quietAt  time.Time
	channel  byte
	scratch  []byte
}

// New creates a Client over a requester Protocol.
func New(conf Config, proto *pdu.Protocol) *Client {
	c := &Client{
		conf:         conf.withDefaults(),
		proto:        proto,
		connOriented: proto.Role.Family == pdu.FamilyCharacteristic,
	}
	c.queue = ring.NewQueue[Request](c.conf.QueueSize)
	c.scratch = make([]byte, proto.Framer().MaxPacketSize())
	proto.Notifier = pdu.StateChangedFunc(c.stateChanged)
	proto.Setup(c)
	return c
}

// Protocol gets the underlying protocol.
func (c *Client) Protocol() *pdu.Protocol {
	return c.proto
}

// State gets the current state.
func (c *Client) State() comm.State {
	return c.proto.State()
}

// Connected reports whether the peer connection is established.
func (c *Client) Connected() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.connected
}

// Pending returns the number of queued requests.
func (c *Client) Pending() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.queue.Count()
}

// Waiting reports whether a transaction is outstanding.
func (c *Client) Waiting() bool {
	return c.waiting
}

// Start starts the protocol and clears pending requests.
func (c *Client) Start() error {
	if err := c.proto.Start(); err != nil {
		return err
	}
	c.lock.Lock()
	c.queue.Clear()
	c.connected = false
	c.lock.Unlock()
	c.waiting, c.timeouts, c.quiet = false, 0, false
	c.polledAt = c.conf.Clock.Now()
	c.selectSlot(NoSlot)
	return nil
}

// Stop stops the protocol. Pending requests are kept until the next Start.
func (c *Client) Stop() {
	c.proto.Stop()
}

// Recover clears StateError. Pending requests are kept until the next Start.
func (c *Client) Recover() {
	c.proto.Recover()
}

// Enqueue appends a request to the pending queue.
func (c *Client) Enqueue(req Request) error {
	if req.Op != OpChangeChannel && !c.proto.Role.Family.Supports(req.Op) {
		return fmt.Errorf("%s: %w", req.Op, pdu.ErrUnsupported)
	}
	if c.proto.State() != comm.StateOperating {
		return ErrNotOperating
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.queue.Enqueue(req) {
		return ErrQueueFull
	}
	return nil
}

// EnqueueRead requests reading id into buf.
func (c *Client) EnqueueRead(slot, id byte, buf []byte) error {
	return c.Enqueue(Request{Slot: slot, ID: id, Op: pdu.OpRead, Data: buf})
}

// EnqueueWrite requests writing data to id.
func (c *Client) EnqueueWrite(slot, id byte, data []byte) error {
	return c.Enqueue(Request{Slot: slot, ID: id, Op: pdu.OpWrite, Data: data})
}

// EnqueuePoll requests a poll.
func (c *Client) EnqueuePoll(slot byte) error {
	return c.Enqueue(Request{Slot: slot, Op: pdu.OpPoll})
}

// EnqueueCheck requests the peer identification.
func (c *Client) EnqueueCheck() error {
	return c.Enqueue(Request{Op: pdu.OpCheck})
}

// EnqueueConnect requests connecting to the peer.
func (c *Client) EnqueueConnect() error {
	return c.Enqueue(Request{Op: pdu.OpConnect})
}

// EnqueueDisconnect requests disconnecting from the peer.
func (c *Client) EnqueueDisconnect() error {
	return c.Enqueue(Request{Op: pdu.OpDisconnect})
}

// EnqueueChangeChannel requests switching the transport channel.
func (c *Client) EnqueueChangeChannel(ch byte) error {
	return c.Enqueue(Request{Op: OpChangeChannel, Channel: ch})
}

// ClearPending drops all queued requests. The outstanding transaction
// isn't affected.
func (c *Client) ClearPending() {
	c.lock.Lock()
	c.queue.Clear()
	c.lock.Unlock()
}

// Execute runs one pass: receive responses, then resolve timeouts or
// send the next request.
func (c *Client) Execute() {
	c.proto.Execute()
	if c.proto.State() != comm.StateOperating {
		return
	}
	now := c.conf.Clock.Now()

	if c.connOriented && c.conf.PollPeriod > 0 && !c.waiting &&
		c.Connected() && now.Sub(c.polledAt) >= c.conf.PollPeriod {
		glog.V(2).Info("keep-alive poll")
		c.transact(Request{Op: pdu.OpPoll, KeepAlive: true}, now)
		return
	}

	if c.quiet && now.Sub(c.quietAt) >= c.conf.ChannelAwait {
		c.quiet = false
	}

	if c.waiting {
		if now.Sub(c.sentAt) < c.conf.Timeout {
			return
		}
		c.timeouts++
		limit := c.conf.MaxTimeouts
		if c.cache.Op == pdu.OpCheck {
			limit = c.conf.MaxCheckTimeouts
		}
		if c.timeouts > limit {
			c.giveUp()
			return
		}
		glog.V(2).Infof("timeout %d/%d, resend %s", c.timeouts, limit, c.cache)
		c.transmit(now)
		return
	}

	if c.quiet {
		return
	}

	c.lock.Lock()
	req, ok := c.queue.Dequeue()
	c.lock.Unlock()
	if !ok {
		if fn := c.Callbacks.Idle; fn != nil {
			fn()
		}
		return
	}
	c.process(req, now)
}

func (c *Client) process(req Request, now time.Time) {
	if c.connOriented {
		connected := c.Connected()
		allowed := !connected
		switch req.Op {
		case pdu.OpPoll, pdu.OpDisconnect, pdu.OpRead, pdu.OpWrite:
			allowed = connected
		}
		if !allowed {
			glog.V(2).Infof("%s skipped, connected=%v", req, connected)
			c.failed(&req, ErrConnectionState)
			return
		}
	}
	if req.Op == OpChangeChannel {
		glog.V(2).Infof("switching to channel %d", req.Channel)
		if err := c.proto.Framer().ChangeChannel(req.Channel); err != nil {
			glog.Warningf("change channel %d: %v", req.Channel, err)
			c.failed(&req, err)
			return
		}
		c.channel = req.Channel
		c.quiet, c.quietAt = true, now
		return
	}
	c.transact(req, now)
}

func (c *Client) transact(req Request, now time.Time) {
	c.cache = req
	c.waiting = true
	c.timeouts = 0
	c.transmit(now)
}

func (c *Client) transmit(now time.Time) {
	c.sentAt, c.polledAt = now, now
	c.selectSlot(c.cache.Slot)
	var data []byte
	if c.cache.Op == pdu.OpWrite {
		data = c.cache.Data
	}
	err := c.proto.Request(c.cache.Slot, c.cache.Op, c.cache.ID, data)
	if err == nil {
		return
	}
	if errors.Is(err, comm.ErrBusy) {
		// retried on timeout.
		glog.V(2).Infof("send %s: %v", c.cache, err)
		return
	}
	req := c.cache
	c.resolve()
	c.failed(&req, err)
}

func (c *Client) giveUp() {
	glog.V(2).Infof("no response: %s", c.cache)
	req := c.cache
	c.resolve()
	if fn := c.Callbacks.NoResponse; fn != nil {
		fn(&req)
	}
	if c.setConnected(false) {
		c.connectionChanged(false)
	}
}

func (c *Client) resolve() {
	c.waiting = false
	c.timeouts = 0
	c.selectSlot(NoSlot)
}

// HandlePDU implements pdu.Handler.
func (c *Client) HandlePDU(msg *pdu.Message) {
	if !c.waiting || msg.Op != c.cache.Op {
		glog.V(2).Infof("unexpected response %s", msg)
		return
	}
	if c.proto.Role.Addressed && msg.Src != c.cache.Slot {
		glog.V(2).Infof("response from slot %d, expect %d", msg.Src, c.cache.Slot)
		return
	}
	req := c.cache
	c.resolve()

	switch msg.Op {
	case pdu.OpCheck:
		size := msg.Size
		if size > len(c.scratch) {
			size = len(c.scratch)
		}
		data := c.scratch[:c.proto.ParseData(c.scratch[:size])]
		if fn := c.Callbacks.CheckResult; fn != nil {
			fn(c.channel, data)
		}
	case pdu.OpConnect:
		if msg.Result != pdu.ResultSuccess {
			c.failed(&req, &pdu.ResultError{Op: msg.Op, Result: msg.Result})
			return
		}
		c.polledAt = c.conf.Clock.Now()
		if c.setConnected(true) {
			c.connectionChanged(true)
		}
	case pdu.OpDisconnect:
		if c.setConnected(false) {
			c.connectionChanged(false)
		}
	case pdu.OpRead:
		if msg.Result != pdu.ResultSuccess {
			c.failed(&req, &pdu.ResultError{Op: msg.Op, Result: msg.Result})
			return
		}
		req.Data = req.Data[:c.proto.ParseData(req.Data)]
		if fn := c.Callbacks.ReadComplete; fn != nil {
			fn(&req)
		}
	case pdu.OpWrite:
		if msg.Result != pdu.ResultSuccess {
			c.failed(&req, &pdu.ResultError{Op: msg.Op, Result: msg.Result})
			return
		}
		if fn := c.Callbacks.WriteComplete; fn != nil {
			fn(&req)
		}
	case pdu.OpPoll:
		if fn := c.Callbacks.PollResponse; fn != nil {
			fn(&req)
		}
	}
}

func (c *Client) stateChanged(state comm.State) {
	if state != comm.StateError {
		return
	}
	wasConnected := c.setConnected(false)
	c.waiting = false
	glog.Warningf("client error, connected=%v", wasConnected)
	if fn := c.Callbacks.ErrorOccurred; fn != nil {
		fn(wasConnected)
	}
}

// setConnected returns true if the state changed.
func (c *Client) setConnected(connected bool) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.connected == connected {
		return false
	}
	c.connected = connected
	return true
}

func (c *Client) connectionChanged(connected bool) {
	glog.V(2).Infof("connected=%v", connected)
	if fn := c.Callbacks.ConnectionStateChanged; fn != nil {
		fn(connected)
	}
}

func (c *Client) failed(req *Request, err error) {
	glog.V(2).Infof("%s failed: %v", req, err)
	if fn := c.Callbacks.OperationFailed; fn != nil {
		fn(req, err)
	}
}

func (c *Client) selectSlot(slot byte) {
	if fn := c.Callbacks.SelectSlot; fn != nil {
		fn(slot)
	}
}
