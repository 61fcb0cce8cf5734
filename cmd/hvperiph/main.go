package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	fx "github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/framework"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l1/env"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/periph"
)

func init() {
	env.SetupFlags()
	periph.SetupFlags()
}

func main() {
	flag.Parse()

	runner := fx.NewRunner().HandleSignals()
	conf := env.Default()
	e, srv := conf.MustNewServer(runner.Context)
	defer e.Close()
	p, err := periph.Default().NewPeripheral(srv)
	if err != nil {
		log.Fatalln(err)
	}
	if err := srv.Start(); err != nil {
		log.Fatalln(err)
	}

	loop := fx.NewLoop().Add(e, p)
	loop.Interval = conf.Interval
	loop.RunOrFail(runner.Context)
}
