package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	fx "github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/framework"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l0/pdu"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l1/env"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/monitor"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	conf := env.Default()
	family, err := pdu.ParseFamily(conf.Family)
	if err != nil {
		log.Fatalln(err)
	}
	runner := fx.NewRunner().HandleSignals()
	conn, err := conf.Dial(runner.Context, env.ModeMonitor)
	if err != nil {
		log.Fatalln(err)
	}
	defer conn.Close()

	m := monitor.New(family, conf.Addressed, conf.MaxPacketSize)
	m.Print = func(line string) { log.Printf("%s: %s", conn.Name, line) }
	runner.Go(conn.Runners...)
	runner.Go(fx.NamedRun("monitor", &monitor.Source{Reader: conn, Monitor: m}))
	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}
