// Package periph runs a server as a standalone peripheral with items
// declared on the command line.
package periph

import (
	"encoding/hex"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/server"
)

// ItemDef declares an item.
type ItemDef struct {
	ID   byte
	Data []byte
	Perm server.Permission
}

// ParseItemDef parses ID:HEX[:PERM], e.g. 3:01020304:rw.
func ParseItemDef(s string) (ItemDef, error) {
	var def ItemDef
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 {
		return def, fmt.Errorf("invalid item %q, expect ID:HEX[:PERM]", s)
	}
	var id uint
	if _, err := fmt.Sscan(parts[0], &id); err != nil || id > 0xff {
		return def, fmt.Errorf("invalid item id %q", parts[0])
	}
	def.ID = byte(id)
	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return def, fmt.Errorf("invalid item data %q: %v", parts[1], err)
	}
	def.Data, def.Perm = data, server.PermRead|server.PermWrite
	if len(parts) > 2 {
		if def.Perm, err = server.ParsePermission(parts[2]); err != nil {
			return def, err
		}
	}
	return def, nil
}

// String implements fmt.Stringer.
func (s ItemDef) String() string {
	return fmt.Sprintf("%d:%x:%s", s.ID, s.Data, s.Perm)
}

// ItemList implements flag.Value.
type ItemList []ItemDef

// String implements flag.Value.
func (l *ItemList) String() string {
	items := make([]string, len(*l))
	for n, item := range *l {
		items[n] = item.String()
	}
	return strings.Join(items, ",")
}

// Set implements flag.Value.
func (l *ItemList) Set(s string) error {
	def, err := ParseItemDef(s)
	if err != nil {
		return err
	}
	*l = append(*l, def)
	return nil
}

// Config defines the configurations for the peripheral.
type Config struct {
	Items   ItemList
	Verbose bool
	// RetryInterval is the least time between link restarts.
	RetryInterval time.Duration
}

var defaultConfig = Config{RetryInterval: DefaultRetryInterval}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.Var(&defaultConfig.Items, "item", "Item ID:HEX[:PERM], PERM is a combination of r, w and n. Repeatable.")
	flag.BoolVar(&defaultConfig.Verbose, "verbose", defaultConfig.Verbose, "Print server events.")
	flag.DurationVar(&defaultConfig.RetryInterval, "retry-interval", defaultConfig.RetryInterval, "Least time between link restarts.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	conf.Items = append(ItemList(nil), defaultConfig.Items...)
	return &conf
}

// NewPeripheral creates a peripheral serving the configured items.
func (c *Config) NewPeripheral(srv *server.Server) (*Peripheral, error) {
	p := NewPeripheral(srv)
	p.Verbose = c.Verbose
	p.RetryInterval = c.RetryInterval
	for _, item := range c.Items {
		if err := srv.Register(item.ID, item.Data, item.Perm); err != nil {
			return nil, fmt.Errorf("register %s: %w", item, err)
		}
	}
	return p, nil
}
