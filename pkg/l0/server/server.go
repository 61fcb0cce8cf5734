// Package server implements the responding side of a link: requests are
// answered from a dispatch table of registered items.
package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"

	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/comm"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/pdu"
)

// Default table capacities.
const (
	CharacteristicCapacity = 32
	ObjShareCapacity       = 16
)

// Event is reported to the EventHandler.
type Event int

const (
	// EventConnection reports a peer connected.
	EventConnection Event = iota
	// EventDisconnection reports a peer disconnected, by request or after
	// the dropout period without traffic.
	EventDisconnection
	// EventRead reports an item was read.
	EventRead
	// EventWrite reports an item was written.
	EventWrite
)

// String implements fmt.Stringer.
func (e Event) String() string {
	switch e {
	case EventConnection:
		return "connection"
	case EventDisconnection:
		return "disconnection"
	case EventRead:
		return "read"
	case EventWrite:
		return "write"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// EventHandler is called from Execute. id is only meaningful for
// EventRead and EventWrite.
type EventHandler interface {
	HandleServerEvent(ev Event, id byte)
}

// HandleServerEventFunc is func type of EventHandler.
type HandleServerEventFunc func(Event, byte)

// HandleServerEvent implements EventHandler.
func (f HandleServerEventFunc) HandleServerEvent(ev Event, id byte) {
	f(ev, id)
}

// Config configures a Server.
type Config struct {
	// Capacity of the dispatch table, the family default if zero.
	Capacity int
	// Dropout disconnects a peer silent for this long. Zero disables it.
	Dropout time.Duration
	// DeviceID is the CHECK response payload.
	DeviceID []byte
	// Clock is the time source, the wall clock if nil.
	Clock clock.Clock
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{Dropout: 1500 * time.Millisecond}
}

// Server answers requests from a Table.
type Server struct {
	Table   *Table
	Handler EventHandler

	conf         Config
	proto        *pdu.Protocol
	connOriented bool

	lock      sync.Mutex
	connected bool
	activeAt  time.Time
}

// New creates a Server over a responder Protocol.
func New(conf Config, proto *pdu.Protocol) *Server {
	if conf.Clock == nil {
		conf.Clock = clock.New()
	}
	s := &Server{
		conf:         conf,
		proto:        proto,
		connOriented: proto.Role.Family == pdu.FamilyCharacteristic,
	}
	capacity := conf.Capacity
	if capacity <= 0 {
		capacity = CharacteristicCapacity
		if !s.connOriented {
			capacity = ObjShareCapacity
		}
	}
	s.Table = NewTable(capacity)
	proto.Notifier = pdu.StateChangedFunc(s.stateChanged)
	proto.Setup(s)
	return s
}

// Protocol gets the underlying protocol.
func (s *Server) Protocol() *pdu.Protocol {
	return s.proto
}

// State gets the current state.
func (s *Server) State() comm.State {
	return s.proto.State()
}

// Connected reports whether a peer is connected.
func (s *Server) Connected() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.connected
}

// Register adds an item to the table.
func (s *Server) Register(id byte, data []byte, perm Permission) error {
	return s.Table.Register(id, data, perm)
}

// Deregister removes an item from the table.
func (s *Server) Deregister(id byte) bool {
	return s.Table.Deregister(id)
}

// Start starts the protocol.
func (s *Server) Start() error {
	if err := s.proto.Start(); err != nil {
		return err
	}
	s.setConnected(false)
	s.activeAt = s.conf.Clock.Now()
	return nil
}

// Stop stops the protocol.
func (s *Server) Stop() {
	s.proto.Stop()
}

// Recover clears StateError.
func (s *Server) Recover() {
	s.proto.Recover()
}

// Execute runs one pass: answer received requests and check for dropout.
func (s *Server) Execute() {
	s.proto.Execute()
	if s.proto.State() != comm.StateOperating || !s.connOriented || s.conf.Dropout <= 0 {
		return
	}
	if s.Connected() && s.conf.Clock.Now().Sub(s.activeAt) > s.conf.Dropout {
		glog.V(2).Info("connection dropped")
		s.setConnected(false)
		s.emit(EventDisconnection, 0)
	}
}

// HandlePDU implements pdu.Handler.
func (s *Server) HandlePDU(msg *pdu.Message) {
	s.activeAt = s.conf.Clock.Now()
	connected := s.Connected()
	switch msg.Op {
	case pdu.OpCheck:
		if !connected {
			s.respond(msg, pdu.ResultSuccess, s.conf.DeviceID)
		}
	case pdu.OpConnect:
		if !connected {
			s.setConnected(true)
			s.emit(EventConnection, 0)
		}
		s.respond(msg, pdu.ResultSuccess, nil)
	case pdu.OpDisconnect:
		if connected {
			s.setConnected(false)
			s.emit(EventDisconnection, 0)
		}
		s.respond(msg, pdu.ResultSuccess, nil)
	case pdu.OpPoll:
		if connected || !s.connOriented {
			s.respond(msg, pdu.ResultSuccess, nil)
		}
	case pdu.OpRead:
		item, ok := s.Table.Lookup(msg.ID)
		if !ok || item.Perm&PermRead == 0 {
			s.respond(msg, pdu.ResultFailure, nil)
			return
		}
		s.respond(msg, pdu.ResultSuccess, item.Data)
		s.emit(EventRead, msg.ID)
	case pdu.OpWrite:
		item, ok := s.Table.Lookup(msg.ID)
		if !ok || item.Perm&PermWrite == 0 {
			s.respond(msg, pdu.ResultFailure, nil)
			return
		}
		s.proto.ParseData(item.Data)
		s.respond(msg, pdu.ResultSuccess, nil)
		s.emit(EventWrite, msg.ID)
	}
}

func (s *Server) respond(msg *pdu.Message, result pdu.Result, data []byte) {
	if err := s.proto.Respond(msg.Src, msg.Op, result, data); err != nil {
		glog.V(2).Infof("respond %s: %v", msg.Op, err)
	}
}

func (s *Server) stateChanged(state comm.State) {
	if state == comm.StateError {
		glog.Warning("server error")
		s.setConnected(false)
	}
}

func (s *Server) setConnected(connected bool) {
	s.lock.Lock()
	s.connected = connected
	s.lock.Unlock()
}

func (s *Server) emit(ev Event, id byte) {
	glog.V(2).Infof("server event %s %d", ev, id)
	if h := s.Handler; h != nil {
		h.HandleServerEvent(ev, id)
	}
}
