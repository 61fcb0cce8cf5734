package periph

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"

	fx "github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/framework"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/comm"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/server"
)

// DefaultRetryInterval is the default least time between link restarts.
const DefaultRetryInterval = time.Second

// Peripheral drives a Server from the loop and restarts it after link
// errors.
type Peripheral struct {
	Server  *server.Server
	Verbose bool
	// Events counts handled server events.
	Events map[server.Event]int
	// RetryInterval is the least time between restarts.
	RetryInterval time.Duration
	Clock         clock.Clock

	restarting bool
	restartAt  time.Time
}

// NewPeripheral creates a Peripheral.
func NewPeripheral(srv *server.Server) *Peripheral {
	p := &Peripheral{
		Server:        srv,
		Verbose:       defaultConfig.Verbose,
		Events:        make(map[server.Event]int),
		RetryInterval: defaultConfig.RetryInterval,
		Clock:         clock.New(),
	}
	srv.Handler = p
	return p
}

// AddToLoop implements fx.LoopAdder.
func (p *Peripheral) AddToLoop(loop *fx.Loop) {
	loop.AddExecutor(p)
}

// Execute implements fx.Executor.
func (p *Peripheral) Execute() {
	switch p.Server.State() {
	case comm.StateError:
		glog.Warning("peripheral link error, restarting")
		p.Server.Recover()
		p.restarting = true
		p.restart()
	case comm.StateReady:
		if p.restarting {
			p.restart()
		}
	}
	p.Server.Execute()
}

func (p *Peripheral) restart() {
	now := p.Clock.Now()
	if now.Before(p.restartAt) {
		return
	}
	p.restartAt = now.Add(p.RetryInterval)
	if err := p.Server.Start(); err != nil {
		glog.Errorf("restart failed: %v", err)
		return
	}
	p.restarting = false
	glog.Info("peripheral link restarted")
}

// HandleServerEvent implements server.EventHandler.
func (p *Peripheral) HandleServerEvent(ev server.Event, id byte) {
	p.Events[ev]++
	switch ev {
	case server.EventRead, server.EventWrite:
		if p.Verbose {
			glog.Infof("%s %d", ev, id)
		}
	default:
		glog.Info(ev)
	}
}
