// Package monitor decodes and prints frames observed on a link without
// taking part in the exchange.
package monitor

import (
	"context"
	"fmt"
	"io"

	"github.com/golang/glog"

	fx "github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/framework"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/comm"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/pdu"
)

// Monitor decodes a byte stream into PDU descriptions.
type Monitor struct {
	Family    pdu.Family
	Addressed bool
	// Print receives one line per decoded frame or drop.
	Print func(line string)

	parser comm.Parser
}

// New creates a Monitor.
func New(family pdu.Family, addressed bool, maxSize int) *Monitor {
	m := &Monitor{Family: family, Addressed: addressed}
	m.parser.MaxSize = maxSize
	return m
}

// Write implements io.Writer.
func (m *Monitor) Write(p []byte) (int, error) {
	for _, b := range p {
		res := m.parser.Parse(b)
		if res.Drop != comm.DropNone {
			m.print(fmt.Sprintf("dropped: %s", res.Drop))
		}
		if res.Payload != nil {
			m.print(m.Describe(res.Payload))
		}
	}
	return len(p), nil
}

// Describe formats a PDU.
func (m *Monitor) Describe(p []byte) string {
	var prefix string
	if m.Addressed {
		if len(p) < 2 {
			return fmt.Sprintf("short pdu % x", p)
		}
		prefix = fmt.Sprintf("%d->%d ", p[0], p[1])
		p = p[2:]
	}
	if len(p) == 0 {
		return prefix + "empty pdu"
	}
	desc := prefix + m.Family.TypeName(pdu.Type(p[0]))
	if len(p) > 1 {
		desc += fmt.Sprintf(" % x", p[1:])
	}
	return desc
}

func (m *Monitor) print(line string) {
	if fn := m.Print; fn != nil {
		fn(line)
		return
	}
	glog.Info(line)
}

// Source feeds a Monitor from a reader.
type Source struct {
	Reader  io.Reader
	Monitor *Monitor
}

// Run implements fx.Runnable.
func (s *Source) Run(ctx context.Context) error {
	copyFn := func() error {
		_, err := io.Copy(s.Monitor, s.Reader)
		return err
	}
	if closer, ok := s.Reader.(io.Closer); ok {
		return fx.RunWithContextCloser(ctx, closer, copyFn)
	}
	return fx.RunWithContext(ctx, copyFn)
}
