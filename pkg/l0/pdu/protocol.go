package pdu

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/comm"
)

// Direction of a half-duplex line.
type Direction int

const (
	// DirectionRX turns the line around for receiving.
	DirectionRX Direction = iota
	// DirectionTX turns the line around for transmitting.
	DirectionTX
)

// Role configures a Protocol.
type Role struct {
	Family Family
	Side   Side
	// Addressed puts source and destination addresses in front of the
	// type tag. Received PDUs for other destinations are discarded.
	Addressed bool
	Home      byte
	// SwitchDirection is called with DirectionTX before each send and with
	// DirectionRX once the frame is transmitted.
	SwitchDirection func(Direction)
}

// Message is a decoded PDU header.
type Message struct {
	Src      byte
	Dst      byte
	Type     Type
	Op       Op
	Response bool
	ID       byte
	Result   Result
	// Size is the number of payload bytes left for ParseData.
	Size int
}

// String implements fmt.Stringer.
func (m *Message) String() string {
	kind := "req"
	if m.Response {
		kind = "resp"
	}
	return fmt.Sprintf("%s-%s src=%d dst=%d id=%d result=%s size=%d",
		m.Op, kind, m.Src, m.Dst, m.ID, m.Result, m.Size)
}

// Handler is called when a PDU is received.
type Handler interface {
	HandlePDU(*Message)
}

// HandlePDUFunc is func type of Handler.
type HandlePDUFunc func(*Message)

// HandlePDU implements Handler.
func (f HandlePDUFunc) HandlePDU(msg *Message) {
	f(msg)
}

// StateNotifier is called when the protocol state changed.
type StateNotifier interface {
	StateChanged(comm.State)
}

// StateChangedFunc is func type of StateNotifier.
type StateChangedFunc func(comm.State)

// StateChanged implements StateNotifier.
func (f StateChangedFunc) StateChanged(state comm.State) {
	f(state)
}

// Protocol sends and receives PDUs of one role over a Framer.
type Protocol struct {
	Role     Role
	Handler  Handler
	Notifier StateNotifier

	framer    comm.Framer
	state     comm.State
	remaining int
	header    [5]byte
	msg       Message
}

// New creates a Protocol over framer.
func New(role Role, framer comm.Framer) *Protocol {
	return &Protocol{Role: role, framer: framer}
}

// Framer gets the underlying framer.
func (p *Protocol) Framer() comm.Framer {
	return p.framer
}

// State gets the current state.
func (p *Protocol) State() comm.State {
	return p.state
}

// Setup wires the receive handler and moves to StateReady.
func (p *Protocol) Setup(h Handler) {
	p.Handler = h
	p.framer.Setup(p)
	if p.state == comm.StateUninit {
		p.setState(comm.StateReady)
	}
}

// Start starts the framer.
func (p *Protocol) Start() error {
	if p.state != comm.StateReady {
		return fmt.Errorf("start in state %s: %w", p.state, comm.ErrNotReady)
	}
	if err := p.framer.Start(); err != nil {
		return err
	}
	p.setState(comm.StateOperating)
	if sw := p.Role.SwitchDirection; sw != nil {
		sw(DirectionRX)
	}
	return nil
}

// Stop stops the framer.
func (p *Protocol) Stop() {
	p.framer.Stop()
	if p.state == comm.StateOperating {
		p.setState(comm.StateReady)
	}
}

// Recover clears StateError in the protocol and the framer.
func (p *Protocol) Recover() {
	p.framer.Recover()
	if p.state == comm.StateError {
		p.setState(comm.StateReady)
	}
}

// Execute runs one framer pass. Received PDUs are dispatched from here.
func (p *Protocol) Execute() {
	if p.state != comm.StateOperating {
		return
	}
	p.framer.Execute()
}

// Send encodes and sends a PDU. data is used only by types with a data
// field and is not retained after Send returns.
func (p *Protocol) Send(msg *Message, data []byte) error {
	if p.state != comm.StateOperating {
		return comm.ErrNotReady
	}
	op, resp, ok := p.Role.Family.Lookup(msg.Type)
	if !ok {
		return fmt.Errorf("type %d: %w", msg.Type, ErrUnsupported)
	}
	lay := layoutOf(op, resp)
	hdr := p.header[:0]
	if p.Role.Addressed {
		hdr = append(hdr, p.Role.Home, msg.Dst)
	}
	hdr = append(hdr, byte(msg.Type))
	if lay.id {
		hdr = append(hdr, msg.ID)
	}
	if lay.result {
		hdr = append(hdr, byte(msg.Result))
	}
	if sw := p.Role.SwitchDirection; sw != nil {
		sw(DirectionTX)
	}
	if glog.V(4) {
		glog.Infof("SND %s % x", p.Role.Family.TypeName(msg.Type), data)
	}
	if lay.data && len(data) > 0 {
		return p.framer.Send(hdr, data)
	}
	return p.framer.Send(hdr)
}

// Request sends the request of op to dst.
func (p *Protocol) Request(dst byte, op Op, id byte, data []byte) error {
	t, ok := p.Role.Family.Request(op)
	if !ok {
		return ErrUnsupported
	}
	return p.Send(&Message{Dst: dst, Type: t, Op: op, ID: id}, data)
}

// Respond sends the response of op to dst.
func (p *Protocol) Respond(dst byte, op Op, result Result, data []byte) error {
	t, ok := p.Role.Family.Response(op)
	if !ok {
		return ErrUnsupported
	}
	return p.Send(&Message{Dst: dst, Type: t, Op: op, Response: true, Result: result}, data)
}

// ParseData copies the next payload bytes of the PDU being handled into
// dst and returns the number of bytes copied. It is only valid inside
// HandlePDU.
func (p *Protocol) ParseData(dst []byte) int {
	before := p.remaining
	p.remaining = p.framer.ParseField(dst, p.remaining)
	return before - p.remaining
}

// Remaining returns the payload bytes left for ParseData.
func (p *Protocol) Remaining() int {
	return p.remaining
}

// HandleFramerEvent implements comm.EventHandler.
func (p *Protocol) HandleFramerEvent(ev comm.Event, size int) {
	switch ev {
	case comm.EventErrorOccurred:
		glog.Warningf("%s protocol: framer error", p.Role.Family)
		p.setState(comm.StateError)
	case comm.EventTransmitted:
		if sw := p.Role.SwitchDirection; sw != nil && p.state == comm.StateOperating {
			sw(DirectionRX)
		}
	case comm.EventPDUReceived:
		if p.state != comm.StateOperating {
			return
		}
		if msg := p.decode(size); msg != nil {
			if h := p.Handler; h != nil {
				h.HandlePDU(msg)
			}
		}
	}
}

func (p *Protocol) decode(size int) *Message {
	p.remaining = size
	msg := &p.msg
	*msg = Message{}
	var b [1]byte
	if p.Role.Addressed {
		if !p.parseByte(&msg.Src) || !p.parseByte(&msg.Dst) {
			return p.drop("short address")
		}
		if msg.Dst != p.Role.Home {
			return p.drop("not addressed to us")
		}
	}
	if !p.parseByte(&b[0]) {
		return p.drop("empty")
	}
	msg.Type = Type(b[0])
	op, resp, ok := p.Role.Family.Lookup(msg.Type)
	if !ok {
		return p.drop("unknown type")
	}
	// Each side only accepts what the other side sends.
	if resp != (p.Role.Side == SideRequester) {
		return p.drop("wrong direction")
	}
	msg.Op, msg.Response = op, resp
	lay := layoutOf(op, resp)
	if lay.id && !p.parseByte(&msg.ID) {
		return p.drop("missing id")
	}
	if lay.result {
		if !p.parseByte(&b[0]) {
			return p.drop("missing result")
		}
		msg.Result = Result(b[0])
	}
	msg.Size = p.remaining
	return msg
}

func (p *Protocol) parseByte(dst *byte) bool {
	var b [1]byte
	if p.ParseData(b[:]) != 1 {
		return false
	}
	*dst = b[0]
	return true
}

func (p *Protocol) drop(reason string) *Message {
	glog.V(2).Infof("%s protocol: pdu dropped: %s", p.Role.Family, reason)
	return nil
}

func (p *Protocol) setState(state comm.State) {
	if p.state == state {
		return
	}
	p.state = state
	if n := p.Notifier; n != nil {
		n.StateChanged(state)
	}
}
