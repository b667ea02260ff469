package main

import (
	"os"

	"github.com/careatlas-systems/pulse/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
