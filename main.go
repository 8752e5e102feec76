package main

import (
	"os"

	"github.com/spigell/aura-hire/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
