package main

import (
	"os"

	"github.com/kiranshivaraju/logsweep/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
