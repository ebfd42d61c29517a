package main

import (
	"os"

	"github.com/msto63/spiritflow/cmd/spiritflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
