package main

import (
	"context"
	"fmt"
	"os"
)

// runInit is the PID 1 entry point. Command-line parsing is skipped: the
// kernel passes its unrecognised boot parameters as arguments.
func runInit(args []string) int {
	if err := controller().Init(context.Background(), args); err != nil {
		fmt.Fprintln(os.Stderr, "bootchartd:", err)
		return 1
	}
	return 0
}
