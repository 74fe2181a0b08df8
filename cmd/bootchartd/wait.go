package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"bootchartd/internal/app"
	"bootchartd/internal/detector"
)

func init() {
	rootCmd.AddCommand(cmdWait)
}

var waitAsInit bool

func init() {
	cmdWait.Flags().BoolVar(&waitAsInit, "as-init", false, "Run as the detector spawned by init")
	_ = cmdWait.Flags().MarkHidden("as-init")
}

// isTerminal is replaced in tests.
var isTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

var cmdWait = &cobra.Command{
	Use:   "wait",
	Short: "Wait for boot to complete, then archive the samples",
	Long: `Polls the process table until one of the wait_set processes appears,
lets the system settle for 20 seconds and then runs the same extraction as
"bootchartd stop". Progress is published on the detector socket for
"bootchartd status --watch". SIGINT or SIGTERM abandons the wait.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		params := app.WaitParams{AsInit: waitAsInit}

		var spin *spinner.Spinner
		if !waitAsInit && isTerminal(out) {
			spin = spinner.New(spinner.CharSets[21], 120*time.Millisecond, spinner.WithWriter(out))
			spin.Suffix = " " + waitLabel(detector.StateWaitingForProcFS)
			spin.Start()
			params.OnState = func(st detector.State) {
				spin.Lock()
				spin.Suffix = " " + waitLabel(st)
				spin.Unlock()
			}
		}

		res, err := controller().Wait(ctx, params)
		if spin != nil {
			spin.Stop()
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			fmt.Fprintln(out, "Wait abandoned, nothing archived")
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "Boot complete; archive written to %s (%d bytes)\n", res.Archive.Destination, res.Archive.Bytes)
		printRendered(out, res)
		return nil
	},
}

func waitLabel(st detector.State) string {
	switch st {
	case detector.StateWaitingForProcFS:
		return "Waiting for /proc..."
	case detector.StateWaitingForSession:
		return "Waiting for a session process..."
	default:
		return "Archiving..."
	}
}
