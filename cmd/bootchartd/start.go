package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(cmdStart)
	cmdStart.Flags().SetInterspersed(false)
}

var cmdStart = &cobra.Command{
	Use:   "start [command [args...]]",
	Short: "Start the collector, or profile a single command",
	Long: `Without arguments the collector is started in the background and keeps
sampling until "bootchartd stop". If a collector is already running nothing
happens.

With a command, the collector is started, the command runs in the foreground
and the samples are archived as soon as it exits, whatever its exit status.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var command string
		var rest []string
		if len(args) > 0 {
			command, rest = args[0], args[1:]
		}

		res, err := controller().Start(cmd.Context(), command, rest)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch {
		case res.Stop != nil:
			a := res.Stop.Pipeline.Archive
			fmt.Fprintf(out, "Profiled %s; archive written to %s (%d bytes)\n", command, a.Destination, a.Bytes)
			printRendered(out, res.Stop.Pipeline)
		case res.AlreadyRunning:
			fmt.Fprintf(out, "Collector is already running (pid %d)\n", res.Handle.PID)
		default:
			fmt.Fprintf(out, "Collector started (pid %d)\n", res.Handle.PID)
		}
		return nil
	},
}
