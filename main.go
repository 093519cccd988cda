package main

import (
	"os"

	"github.com/podev-dev/podev/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
