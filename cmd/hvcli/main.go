package main

import (
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/cli/sh"
	"github.com/EmbeddedSystemClass/HeavisideProtocol/pkg/l1/env"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
