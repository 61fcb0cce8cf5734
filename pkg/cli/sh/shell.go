// Package sh provides an interactive shell driving a client over a link.
package sh

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l1/comm/serial"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l1/env"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoOpen    bool

	Shell   *ishell.Shell
	Config  *env.Config
	Session *Session
}

const (
	shellKey     = "$shell"
	closedPrompt = "[closed] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&PortsCmd,
		&DiscoverCmd,
		&OpenCmd,
		&CloseCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(closedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpen wraps command func requires an opened link.
func MustBeOpen(fn func(c *ishell.Context, sess *Session)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		sess := ShellFrom(c).Session
		if sess == nil {
			c.Err(errors.New("link not open"))
			return
		}
		fn(c, sess)
	}
}

// WithAutoOpen sets AutoOpen.
func (s *Shell) WithAutoOpen(en bool) *Shell {
	s.AutoOpen = en
	return s
}

// Open opens the configured link and starts a session.
func (s *Shell) Open() error {
	sess, err := OpenSession(s.Config)
	if err != nil {
		return err
	}
	s.Close()
	s.Session = sess
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", sess.Env.Conn.Name))
	return nil
}

// Close closes the current session.
func (s *Shell) Close() {
	if s.Session != nil {
		s.Session.Close()
		s.Session = nil
		s.Shell.SetPrompt(closedPrompt)
	}
}

// Print prints a result as text or JSON.
func (s *Shell) Print(c *ishell.Context, res *Result) {
	if s.OutputJSON {
		out, err := json.Marshal(res)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(res.String())
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoOpen {
		if s.Interactive {
			s.Shell.Printf("Opening %s ...\n", s.Config.URL)
		}
		if err := s.Open(); err != nil {
			log.Fatalf("open %q failed: %v", s.Config.URL, err)
		}
	}
	defer s.Close()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name: "ports",
		Help: "",
		Func: func(c *ishell.Context) {
			ports, err := serial.Ports()
			if err != nil {
				c.Err(err)
				return
			}
			for _, port := range ports {
				c.Printf("serial://%s\n", port)
			}
		},
	}

	// DiscoverCmd lists peripherals announced on an MQTT broker.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Help:    "[TIMEOUT]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			timeout := time.Duration(0)
			if len(c.Args) > 0 {
				var err error
				if timeout, err = time.ParseDuration(c.Args[0]); err != nil {
					c.Err(err)
					return
				}
			}
			peers, err := Discover(context.Background(), s.Config.URL, timeout)
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				out, err := json.Marshal(peers)
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(string(out))
				return
			}
			if len(peers) == 0 {
				c.Println("No peripherals found")
				return
			}
			for _, peer := range peers {
				c.Printf("%s: %s\n", peer.Name, peer.DeviceID)
			}
		},
	}

	// OpenCmd opens the link.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "[URL]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				s.Config.URL = c.Args[0]
			}
			if err := s.Open(); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes the link.
	CloseCmd = ishell.Cmd{
		Name: "close",
		Help: "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Close()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.Default()).WithAutoOpen(true).Run(flag.Args()...)
}
