package main

import (
	"os"

	"github.com/fleetd-io/fleetd/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
