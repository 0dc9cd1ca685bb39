package main

import (
	"fmt"
	"os"

	"github.com/maia-sdr/spectrometerd/cmd"
)

func main() {
	if err := cmd.RootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "spectrometerd: %v\n", err)
		os.Exit(1)
	}
}
