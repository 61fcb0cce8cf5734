package sh

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/client"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/pdu"
)

func init() {
	AddCmds(
		&CheckCmd,
		&ConnectCmd,
		&DisconnectCmd,
		&PollCmd,
		&ReadCmd,
		&WriteCmd,
		&ChannelCmd,
		&StatusCmd,
		&ClearCmd,
		&RecoverCmd,
	)
}

// ParseByte parses a decimal or 0x prefixed byte.
func ParseByte(s string) (byte, error) {
	val, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q", s)
	}
	return byte(val), nil
}

func parseBytes(args []string, names ...string) ([]byte, error) {
	if len(args) < len(names) {
		return nil, fmt.Errorf("expect %d args: %v", len(names), names)
	}
	vals := make([]byte, len(names))
	for n := range names {
		val, err := ParseByte(args[n])
		if err != nil {
			return nil, err
		}
		vals[n] = val
	}
	return vals, nil
}

func request(c *ishell.Context, sess *Session, op pdu.Op, enqueue func(*client.Client) error) {
	res, err := sess.Request(context.Background(), op, enqueue)
	if err != nil {
		c.Err(err)
		return
	}
	ShellFrom(c).Print(c, res)
}

var (
	// CheckCmd identifies the peer.
	CheckCmd = ishell.Cmd{
		Name: "check",
		Help: "",
		Func: MustBeOpen(func(c *ishell.Context, sess *Session) {
			request(c, sess, pdu.OpCheck, (*client.Client).EnqueueCheck)
		}),
	}

	// ConnectCmd connects to the peer.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "",
		Func: MustBeOpen(func(c *ishell.Context, sess *Session) {
			request(c, sess, pdu.OpConnect, (*client.Client).EnqueueConnect)
		}),
	}

	// DisconnectCmd disconnects from the peer.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: MustBeOpen(func(c *ishell.Context, sess *Session) {
			request(c, sess, pdu.OpDisconnect, (*client.Client).EnqueueDisconnect)
		}),
	}

	// PollCmd polls the peer.
	PollCmd = ishell.Cmd{
		Name: "poll",
		Help: "[SLOT]",
		Func: MustBeOpen(func(c *ishell.Context, sess *Session) {
			var slot byte
			if len(c.Args) > 0 {
				var err error
				if slot, err = ParseByte(c.Args[0]); err != nil {
					c.Err(err)
					return
				}
			}
			request(c, sess, pdu.OpPoll, func(cl *client.Client) error {
				return cl.EnqueuePoll(slot)
			})
		}),
	}

	// ReadCmd reads an item.
	ReadCmd = ishell.Cmd{
		Name:    "read",
		Aliases: []string{"r"},
		Help:    "SLOT ID LEN",
		Func: MustBeOpen(func(c *ishell.Context, sess *Session) {
			if len(c.Args) < 3 {
				c.Err(fmt.Errorf("usage: read SLOT ID LEN"))
				return
			}
			args, err := parseBytes(c.Args, "SLOT", "ID")
			if err != nil {
				c.Err(err)
				return
			}
			size, err := strconv.Atoi(c.Args[2])
			if err != nil || size <= 0 {
				c.Err(fmt.Errorf("invalid length %q", c.Args[2]))
				return
			}
			buf := make([]byte, size)
			request(c, sess, pdu.OpRead, func(cl *client.Client) error {
				return cl.EnqueueRead(args[0], args[1], buf)
			})
		}),
	}

	// WriteCmd writes an item.
	WriteCmd = ishell.Cmd{
		Name:    "write",
		Aliases: []string{"w"},
		Help:    "SLOT ID HEX",
		Func: MustBeOpen(func(c *ishell.Context, sess *Session) {
			if len(c.Args) < 3 {
				c.Err(fmt.Errorf("usage: write SLOT ID HEX"))
				return
			}
			args, err := parseBytes(c.Args, "SLOT", "ID")
			if err != nil {
				c.Err(err)
				return
			}
			data, err := hex.DecodeString(c.Args[2])
			if err != nil {
				c.Err(err)
				return
			}
			request(c, sess, pdu.OpWrite, func(cl *client.Client) error {
				return cl.EnqueueWrite(args[0], args[1], data)
			})
		}),
	}

	// ChannelCmd switches the transport channel.
	ChannelCmd = ishell.Cmd{
		Name:    "channel",
		Aliases: []string{"ch"},
		Help:    "CHANNEL",
		Func: MustBeOpen(func(c *ishell.Context, sess *Session) {
			args, err := parseBytes(c.Args, "CHANNEL")
			if err != nil {
				c.Err(err)
				return
			}
			err = sess.Do(context.Background(), func(cl *client.Client) error {
				return cl.EnqueueChangeChannel(args[0])
			})
			if err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// StatusCmd prints the client state.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: MustBeOpen(func(c *ishell.Context, sess *Session) {
			var status string
			err := sess.Do(context.Background(), func(cl *client.Client) error {
				status = fmt.Sprintf("state=%s connected=%v waiting=%v pending=%d",
					cl.State(), cl.Connected(), cl.Waiting(), cl.Pending())
				return nil
			})
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(status)
		}),
	}

	// ClearCmd drops pending requests.
	ClearCmd = ishell.Cmd{
		Name: "clear-pending",
		Help: "",
		Func: MustBeOpen(func(c *ishell.Context, sess *Session) {
			err := sess.Do(context.Background(), func(cl *client.Client) error {
				cl.ClearPending()
				return nil
			})
			if err != nil {
				c.Err(err)
			}
		}),
	}

	// RecoverCmd restarts the client after a link error.
	RecoverCmd = ishell.Cmd{
		Name: "recover",
		Help: "",
		Func: MustBeOpen(func(c *ishell.Context, sess *Session) {
			if err := sess.Restart(context.Background()); err != nil {
				c.Err(err)
			}
		}),
	}
)
