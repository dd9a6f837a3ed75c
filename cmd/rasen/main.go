package main

import (
	"os"

	"github.com/rasenhq/rasen/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
