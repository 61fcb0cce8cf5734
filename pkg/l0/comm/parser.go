package comm

// Parser decodes frames from a byte stream one byte at a time.
type Parser struct {
	// MaxSize limits decoded frame contents including CRC bytes.
	MaxSize int

	state parseState
	buf   []byte
}

// RecvState indicates whether a frame is being received.
type RecvState int

const (
	// RecvIdle means the parser is waiting for a start marker.
	RecvIdle RecvState = iota
	// RecvFrame means a frame has started and bytes are collected.
	RecvFrame
)

// DropReason tells why a frame was discarded.
type DropReason int

const (
	// DropNone means nothing was dropped.
	DropNone DropReason = iota
	// DropChecksum means the CRC didn't validate.
	DropChecksum
	// DropOversize means the frame exceeded MaxSize.
	DropOversize
	// DropRestart means a start marker interrupted the frame.
	DropRestart
)

// String implements fmt.Stringer.
func (r DropReason) String() string {
	switch r {
	case DropNone:
		return "none"
	case DropChecksum:
		return "checksum"
	case DropOversize:
		return "oversize"
	case DropRestart:
		return "restart"
	}
	return "unknown"
}

// ParseResult is the outcome of one parsing step.
type ParseResult struct {
	State RecvState
	// Payload is set when a valid frame completes. It is only valid until
	// the next call to Parse or Reset.
	Payload []byte
	Drop    DropReason
}

type parseState int

const (
	stateIdle    parseState = iota // waiting for START
	stateData                      // collecting frame bytes
	stateEscaped                   // ESCAPE received, waiting for code
)

// DefaultMaxPacketSize is the default limit of decoded frame contents.
const DefaultMaxPacketSize = 256

// State gets the current receiving state.
func (p *Parser) State() RecvState {
	if p.state == stateIdle {
		return RecvIdle
	}
	return RecvFrame
}

// Reset drops any partial frame.
func (p *Parser) Reset() {
	p.state = stateIdle
	p.buf = p.buf[:0]
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) (pr ParseResult) {
	pr.Payload, pr.Drop = p.parseByte(b)
	pr.State = p.State()
	return
}

func (p *Parser) parseByte(b byte) (payload []byte, drop DropReason) {
	switch b {
	case StartByte:
		if p.state != stateIdle && len(p.buf) > 0 {
			drop = DropRestart
		}
		p.buf = p.buf[:0]
		p.state = stateData
		return
	case TerminateByte:
		if p.state == stateIdle {
			return
		}
		p.state = stateIdle
		var ok bool
		if payload, ok = payloadOf(p.buf); !ok {
			drop = DropChecksum
		}
		return
	}

	switch p.state {
	case stateData:
		if b == EscapeByte {
			p.state = stateEscaped
			return
		}
		return nil, p.collect(b)
	case stateEscaped:
		p.state = stateData
		return nil, p.collect(unescape(b))
	}
	return
}

func (p *Parser) collect(b byte) DropReason {
	max := p.MaxSize
	if max <= 0 {
		max = DefaultMaxPacketSize
	}
	if len(p.buf) >= max {
		p.Reset()
		return DropOversize
	}
	if p.buf == nil {
		p.buf = make([]byte, 0, max)
	}
	p.buf = append(p.buf, b)
	return DropNone
}
