package comm

import (
	"fmt"
	"strings"
	"sync"

	"github.com/golang/glog"
)

// State is the lifecycle state shared by the L0 components.
type State int

const (
	// StateUninit means Setup hasn't been called.
	StateUninit State = iota
	// StateReady means the component is set up but not started.
	StateReady
	// StateOperating means the component is started.
	StateOperating
	// StateError means a transport fault stopped the component. It stays
	// here until Recover is called.
	StateError
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUninit:
		return "uninit"
	case StateReady:
		return "ready"
	case StateOperating:
		return "operating"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Event is reported by a Framer to its EventHandler.
type Event int

const (
	// EventPDUReceived reports a valid frame. The size is the payload size
	// available through ParseField.
	EventPDUReceived Event = iota
	// EventErrorOccurred reports a transport fault.
	EventErrorOccurred
	// EventTransmitted reports the last frame left the transport.
	EventTransmitted
)

// String implements fmt.Stringer.
func (e Event) String() string {
	switch e {
	case EventPDUReceived:
		return "pdu-received"
	case EventErrorOccurred:
		return "error-occurred"
	case EventTransmitted:
		return "transmitted"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// EventHandler is called from Execute when a framer event occurs.
type EventHandler interface {
	HandleFramerEvent(ev Event, size int)
}

// HandleFramerEventFunc is func type of EventHandler.
type HandleFramerEventFunc func(Event, int)

// HandleFramerEvent implements EventHandler.
func (f HandleFramerEventFunc) HandleFramerEvent(ev Event, size int) {
	f(ev, size)
}

// Transport is the byte channel below the framer.
type Transport interface {
	Start() error
	Stop()
	// Send hands bytes to the channel. len(p) never exceeds Available.
	Send(p []byte) error
	// Available returns how many bytes Send accepts right now.
	Available() int
}

// ChannelSelector is implemented by transports with selectable channels.
type ChannelSelector interface {
	SelectChannel(ch byte) error
}

// Receiver takes notifications from the transport. The methods only
// buffer bytes or set flags, so they may be called from any goroutine.
type Receiver interface {
	OnBytesReceived(p []byte)
	OnTransmitReady(space int)
	OnTransmitCompleted()
	OnTransportError(err error)
}

// Framer sends and receives PDUs as frames.
type Framer interface {
	Receiver

	Setup(EventHandler)
	Start() error
	Stop()
	// Execute does one pass of receiving, transmitting and fault handling.
	Execute()
	// Send encodes fields as one frame. It fails with ErrBusy while the
	// previous frame is still draining.
	Send(fields ...[]byte) error
	// ParseField copies the next min(len(dst), remaining) bytes of the
	// current PDU into dst and returns the updated remaining size.
	ParseField(dst []byte, remaining int) int
	// Recover moves the framer from StateError back to StateReady.
	Recover()
	// ChangeChannel flushes buffers and switches the transport channel.
	ChangeChannel(ch byte) error
	State() State
	// MaxPacketSize is the largest frame content including CRC bytes.
	MaxPacketSize() int
}

// Design selects a Framer implementation.
type Design int

const (
	// DesignQueued uses ring buffers searched for delimiters.
	DesignQueued Design = iota
	// DesignStreaming parses bytes one at a time.
	DesignStreaming
)

// String implements fmt.Stringer.
func (d Design) String() string {
	if d == DesignStreaming {
		return "streaming"
	}
	return "queued"
}

// ParseDesign parses the name of a Design.
func ParseDesign(s string) (Design, error) {
	switch strings.ToLower(s) {
	case "queued", "":
		return DesignQueued, nil
	case "streaming", "stream":
		return DesignStreaming, nil
	}
	return DesignQueued, fmt.Errorf("unknown framer design %q", s)
}

// Config configures a Framer.
type Config struct {
	Design Design
	// MaxPacketSize limits decoded frame contents including CRC bytes.
	MaxPacketSize int
	// RxSize is the receive buffer size in bytes.
	RxSize int
	// TxChunk limits bytes handed to the transport per Execute.
	TxChunk int
}

// DefaultConfig returns the default framer configuration.
func DefaultConfig() Config {
	return Config{
		Design:        DesignQueued,
		MaxPacketSize: DefaultMaxPacketSize,
		RxSize:        4 * DefaultMaxPacketSize,
		TxChunk:       32,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxPacketSize <= 0 {
		c.MaxPacketSize = def.MaxPacketSize
	}
	if c.RxSize <= 0 {
		c.RxSize = def.RxSize
	}
	if c.TxChunk <= 0 {
		c.TxChunk = def.TxChunk
	}
	return c
}

// New creates a Framer of the configured design.
func New(conf Config, t Transport) Framer {
	if conf.Design == DesignStreaming {
		return NewStreamFramer(conf, t)
	}
	return NewQueuedFramer(conf, t)
}

// core holds what both designs share: lifecycle, transport flags and the
// parse cursor over the current PDU.
type core struct {
	transport Transport
	handler   EventHandler
	conf      Config

	lock        sync.Mutex
	state       State
	fault       error
	txSpace     int
	txCompleted bool
	sending     bool
	dropped     int

	pdu    []byte
	cursor int
}

func (c *core) init(conf Config, t Transport) {
	c.conf, c.transport = conf.withDefaults(), t
}

// Setup implements Framer.
func (c *core) Setup(h EventHandler) {
	c.lock.Lock()
	c.handler = h
	if c.state == StateUninit {
		c.state = StateReady
	}
	c.lock.Unlock()
}

// State implements Framer.
func (c *core) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// MaxPacketSize implements Framer.
func (c *core) MaxPacketSize() int {
	return c.conf.MaxPacketSize
}

// Recover implements Framer.
func (c *core) Recover() {
	c.lock.Lock()
	if c.state == StateError {
		c.state = StateReady
	}
	c.lock.Unlock()
}

// ParseField implements Framer.
func (c *core) ParseField(dst []byte, remaining int) int {
	n := remaining
	if len(dst) < n {
		n = len(dst)
	}
	if avail := len(c.pdu) - c.cursor; n > avail {
		n = avail
	}
	if n <= 0 {
		return remaining
	}
	copy(dst, c.pdu[c.cursor:c.cursor+n])
	c.cursor += n
	return remaining - n
}

// OnTransmitReady implements Receiver.
func (c *core) OnTransmitReady(space int) {
	c.lock.Lock()
	c.txSpace = space
	c.lock.Unlock()
}

// OnTransmitCompleted implements Receiver.
func (c *core) OnTransmitCompleted() {
	c.lock.Lock()
	c.txCompleted = true
	c.lock.Unlock()
}

// OnTransportError implements Receiver.
func (c *core) OnTransportError(err error) {
	c.lock.Lock()
	if c.fault == nil {
		c.fault = err
	}
	c.lock.Unlock()
}

// Dropped returns the number of received bytes discarded for lack of
// buffer space.
func (c *core) Dropped() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.dropped
}

func (c *core) start(reset func()) error {
	c.lock.Lock()
	if c.state != StateReady {
		state := c.state
		c.lock.Unlock()
		return fmt.Errorf("start in state %s: %w", state, ErrNotReady)
	}
	c.lock.Unlock()
	if err := c.transport.Start(); err != nil {
		return err
	}
	c.lock.Lock()
	reset()
	c.fault, c.txCompleted, c.sending = nil, false, false
	c.pdu, c.cursor = nil, 0
	c.state = StateOperating
	c.lock.Unlock()
	return nil
}

func (c *core) stop() {
	c.lock.Lock()
	operating := c.state == StateOperating
	if operating {
		c.state = StateReady
	}
	c.lock.Unlock()
	if operating {
		c.transport.Stop()
	}
}

// checkFault must be called at the start of Execute. It returns false if
// the pass should not continue.
func (c *core) checkFault(flush func()) bool {
	c.lock.Lock()
	if c.state != StateOperating {
		c.lock.Unlock()
		return false
	}
	err := c.fault
	if err == nil {
		c.lock.Unlock()
		return true
	}
	c.fault = nil
	c.state = StateError
	c.sending, c.txCompleted = false, false
	flush()
	c.lock.Unlock()

	glog.Warningf("transport error: %v", err)
	c.transport.Stop()
	c.emit(EventErrorOccurred, 0)
	return false
}

// canSend must be called with lock held.
func (c *core) canSend() error {
	if c.state != StateOperating || c.fault != nil {
		return ErrNotReady
	}
	return nil
}

// sendChunk hands a chunk to the transport outside the lock.
func (c *core) sendChunk(p []byte) {
	if len(p) == 0 {
		return
	}
	if err := c.transport.Send(p); err != nil {
		c.OnTransportError(err)
	}
}

// transmitted reports EventTransmitted when the transport completed and
// nothing of the frame is left. pending must be called with lock held.
func (c *core) transmitted(pending func() bool) {
	c.lock.Lock()
	fire := false
	if c.txCompleted {
		c.txCompleted = false
		if c.sending && !pending() {
			c.sending, fire = false, true
		}
	}
	c.lock.Unlock()
	if fire {
		c.emit(EventTransmitted, 0)
	}
}

func (c *core) received(payload []byte) {
	c.pdu, c.cursor = payload, 0
	if glog.V(4) {
		glog.Infof("RCV % x", payload)
	}
	c.emit(EventPDUReceived, len(payload))
}

func (c *core) emit(ev Event, size int) {
	if h := c.handler; h != nil {
		h.HandleFramerEvent(ev, size)
	}
}

func (c *core) selectChannel(ch byte) error {
	if sel, ok := c.transport.(ChannelSelector); ok {
		return sel.SelectChannel(ch)
	}
	return nil
}
