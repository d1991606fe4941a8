package main

import (
	"os"

	"github.com/teslashibe/go-retail-voice/cmd/retail-voice/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
