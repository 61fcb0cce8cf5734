// Package env sets up links, framers and protocols from flags and
// environment variables.
package env

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/client"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/comm"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/pdu"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/server"
)

// Config provides common options to set up a link.
type Config struct {
	// URL of the link, e.g.
	//   serial:///dev/ttyUSB0?baud=115200&rs485=1
	//   tcp://host:port, tcp://:port?listen=1
	//   mqtt://host:1883/prefix/?name=dev
	//   ws://host:port/path, ws://:port/path?listen=1
	URL string
	// Design is the framer design: queued or streaming.
	Design string
	// Family is the protocol family: characteristic or objshare.
	Family    string
	Addressed bool
	Home      uint
	// Name of the link on shared media like MQTT.
	Name     string
	DeviceID string

	MaxPacketSize int

	Timeout          time.Duration
	MaxTimeouts      int
	MaxCheckTimeouts int
	PollPeriod       time.Duration
	ChannelAwait     time.Duration
	Dropout          time.Duration
	Interval         time.Duration
}

var defaultConfig = Config{
	URL:              "serial:///dev/ttyUSB0",
	Design:           comm.DesignQueued.String(),
	Family:           pdu.FamilyCharacteristic.String(),
	Home:             1,
	Name:             "heaviside",
	MaxPacketSize:    comm.DefaultMaxPacketSize,
	Timeout:          client.DefaultConfig().Timeout,
	MaxTimeouts:      client.DefaultConfig().MaxTimeouts,
	MaxCheckTimeouts: client.DefaultConfig().MaxCheckTimeouts,
	PollPeriod:       client.DefaultConfig().PollPeriod,
	ChannelAwait:     client.DefaultConfig().ChannelAwait,
	Dropout:          server.DefaultConfig().Dropout,
	Interval:         5 * time.Millisecond,
}

func init() {
	if val := os.Getenv("HEAVISIDE_URL"); val != "" {
		defaultConfig.URL = val
	}
	if val := os.Getenv("HEAVISIDE_DESIGN"); val != "" {
		defaultConfig.Design = val
	}
	if val := os.Getenv("HEAVISIDE_FAMILY"); val != "" {
		defaultConfig.Family = val
	}
	if val := os.Getenv("HEAVISIDE_HOME"); val != "" {
		if home, err := strconv.ParseUint(val, 0, 8); err == nil {
			defaultConfig.Home = uint(home)
		}
	}
	if val := os.Getenv("HEAVISIDE_DEVICE_ID"); val != "" {
		defaultConfig.DeviceID = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.URL, "url", defaultConfig.URL, "Link URL (serial, tcp, mqtt, ws).")
	flag.StringVar(&defaultConfig.Design, "design", defaultConfig.Design, "Framer design: queued or streaming.")
	flag.StringVar(&defaultConfig.Family, "family", defaultConfig.Family, "Protocol family: characteristic or objshare.")
	flag.BoolVar(&defaultConfig.Addressed, "addressed", defaultConfig.Addressed, "Prefix PDUs with source and destination addresses.")
	flag.UintVar(&defaultConfig.Home, "home", defaultConfig.Home, "Home address for addressed links.")
	flag.StringVar(&defaultConfig.Name, "name", defaultConfig.Name, "Link name on shared media.")
	flag.StringVar(&defaultConfig.DeviceID, "device-id", defaultConfig.DeviceID, "Device ID reported to CHECK, machine ID if empty.")
	flag.IntVar(&defaultConfig.MaxPacketSize, "max-packet", defaultConfig.MaxPacketSize, "Maximum decoded packet size.")
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Response timeout.")
	flag.IntVar(&defaultConfig.MaxTimeouts, "max-timeouts", defaultConfig.MaxTimeouts, "Retries before giving up.")
	flag.IntVar(&defaultConfig.MaxCheckTimeouts, "max-check-timeouts", defaultConfig.MaxCheckTimeouts, "Retries of CHECK before giving up.")
	flag.DurationVar(&defaultConfig.PollPeriod, "poll", defaultConfig.PollPeriod, "Keep-alive poll period, 0 to disable.")
	flag.DurationVar(&defaultConfig.ChannelAwait, "channel-await", defaultConfig.ChannelAwait, "Quiet window after a channel change.")
	flag.DurationVar(&defaultConfig.Dropout, "dropout", defaultConfig.Dropout, "Disconnect a silent peer after this long.")
	flag.DurationVar(&defaultConfig.Interval, "interval", defaultConfig.Interval, "Poll loop interval.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// FramerConfig builds the framer configuration.
func (c *Config) FramerConfig() (comm.Config, error) {
	conf := comm.DefaultConfig()
	design, err := comm.ParseDesign(c.Design)
	if err != nil {
		return conf, err
	}
	conf.Design = design
	if c.MaxPacketSize > 0 {
		conf.MaxPacketSize = c.MaxPacketSize
		conf.RxSize = 4 * c.MaxPacketSize
	}
	return conf, nil
}

// Role builds the protocol role of a side.
func (c *Config) Role(side pdu.Side) (pdu.Role, error) {
	family, err := pdu.ParseFamily(c.Family)
	if err != nil {
		return pdu.Role{}, err
	}
	if c.Home > 0xff {
		return pdu.Role{}, fmt.Errorf("home address %d out of range", c.Home)
	}
	return pdu.Role{
		Family:    family,
		Side:      side,
		Addressed: c.Addressed,
		Home:      byte(c.Home),
	}, nil
}

// ClientConfig builds the client configuration.
func (c *Config) ClientConfig() client.Config {
	conf := client.DefaultConfig()
	conf.Timeout = c.Timeout
	conf.MaxTimeouts = c.MaxTimeouts
	conf.MaxCheckTimeouts = c.MaxCheckTimeouts
	conf.PollPeriod = c.PollPeriod
	conf.ChannelAwait = c.ChannelAwait
	return conf
}

// ServerConfig builds the server configuration.
func (c *Config) ServerConfig() server.Config {
	conf := server.DefaultConfig()
	conf.Dropout = c.Dropout
	conf.DeviceID = []byte(c.deviceID())
	return conf
}

func (c *Config) deviceID() string {
	if c.DeviceID != "" {
		return c.DeviceID
	}
	return DeviceID()
}

// MustNewClient opens the link and creates a client, fails on error.
func (c *Config) MustNewClient(ctx context.Context) (*Env, *client.Client) {
	e := c.MustOpen(ctx, pdu.SideRequester)
	return e, client.New(c.ClientConfig(), e.Protocol)
}

// MustNewServer opens the link and creates a server, fails on error.
func (c *Config) MustNewServer(ctx context.Context) (*Env, *server.Server) {
	e := c.MustOpen(ctx, pdu.SideResponder)
	return e, server.New(c.ServerConfig(), e.Protocol)
}

// MustOpen opens the link and fails on error.
func (c *Config) MustOpen(ctx context.Context, side pdu.Side) *Env {
	e, err := c.Open(ctx, side)
	if err != nil {
		log.Fatalln(err)
	}
	return e
}
