package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/pablasso/ingot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		// An incomplete run has already printed its summary.
		if !errors.Is(err, cli.ErrRunIncomplete) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
