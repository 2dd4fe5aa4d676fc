package main

import (
	"os"

	"github.com/doxen-app/doxen/pkg/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
