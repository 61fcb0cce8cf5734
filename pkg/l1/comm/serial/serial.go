// Package serial provides UART links.
package serial

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/pdu"
)

// DefaultBaudRate is used when the URL doesn't specify one.
const DefaultBaudRate = 115200

// Port is an opened serial port.
type Port struct {
	serial.Port
	Path string
	// RS485 drives RTS high while transmitting on a half-duplex line.
	RS485 bool
}

// Options are parsed from a serial URL.
type Options struct {
	Path  string
	Mode  serial.Mode
	RS485 bool
}

// ParseURL parses serial:///dev/ttyUSB0?baud=115200&parity=even&rs485=1.
func ParseURL(u *url.URL) (*Options, error) {
	opts := &Options{
		Path: u.Path,
		Mode: serial.Mode{
			BaudRate: DefaultBaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
	}
	if u.Host != "" {
		// serial://COM3
		opts.Path = u.Host + u.Path
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("serial port path required")
	}
	q := u.Query()
	var err error
	if val := q.Get("baud"); val != "" {
		if opts.Mode.BaudRate, err = strconv.Atoi(val); err != nil {
			return nil, fmt.Errorf("invalid baud %q: %v", val, err)
		}
	}
	if val := q.Get("databits"); val != "" {
		if opts.Mode.DataBits, err = strconv.Atoi(val); err != nil {
			return nil, fmt.Errorf("invalid databits %q: %v", val, err)
		}
	}
	switch strings.ToLower(q.Get("parity")) {
	case "", "none", "n":
	case "odd", "o":
		opts.Mode.Parity = serial.OddParity
	case "even", "e":
		opts.Mode.Parity = serial.EvenParity
	default:
		return nil, fmt.Errorf("invalid parity %q", q.Get("parity"))
	}
	switch q.Get("stopbits") {
	case "", "1":
	case "1.5":
		opts.Mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		opts.Mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stopbits %q", q.Get("stopbits"))
	}
	if val := q.Get("rs485"); val != "" {
		if opts.RS485, err = strconv.ParseBool(val); err != nil {
			return nil, fmt.Errorf("invalid rs485 %q: %v", val, err)
		}
	}
	return opts, nil
}

// Open opens the port.
func (o *Options) Open() (*Port, error) {
	mode := o.Mode
	port, err := serial.Open(o.Path, &mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", o.Path, err)
	}
	glog.Infof("serial %s opened at %d baud", o.Path, o.Mode.BaudRate)
	p := &Port{Port: port, Path: o.Path, RS485: o.RS485}
	if p.RS485 {
		p.SwitchDirection(pdu.DirectionRX)
	}
	return p, nil
}

// OpenURL parses the URL and opens the port.
func OpenURL(u *url.URL) (*Port, error) {
	opts, err := ParseURL(u)
	if err != nil {
		return nil, err
	}
	return opts.Open()
}

// SwitchDirection drives RTS for RS485 transceivers.
func (p *Port) SwitchDirection(dir pdu.Direction) {
	if !p.RS485 {
		return
	}
	if err := p.SetRTS(dir == pdu.DirectionTX); err != nil {
		glog.Warningf("serial %s: set RTS: %v", p.Path, err)
	}
}

// Ports lists serial ports on the system.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
