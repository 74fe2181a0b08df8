package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"bootchartd/internal/app"
	"bootchartd/internal/pipeline"
)

func init() {
	rootCmd.AddCommand(cmdStop)
}

var stopForce bool

func init() {
	cmdStop.Flags().BoolVarP(&stopForce, "force", "f", false, "Kill a waiting detector that does not exit on SIGTERM")
}

var cmdStop = &cobra.Command{
	Use:   "stop",
	Short: "Extract the collected samples into the archive",
	Long: `Dumps the running collector into a temporary directory, packages the dump
into the archive, renders it when auto_render is enabled and runs the
custom post command. A detector still waiting for boot to finish is stopped
so the boot is not archived twice.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := controller().Stop(cmd.Context(), app.StopParams{Force: stopForce})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		a := res.Pipeline.Archive
		fmt.Fprintf(out, "Archive written to %s (%d bytes, %d files)\n", a.Destination, a.Bytes, len(a.Entries))
		printRendered(out, res.Pipeline)
		if res.DetectorStopped {
			fmt.Fprintln(out, "Stopped waiting detector")
		}
		if res.DetectorErr != nil {
			fmt.Fprintf(out, "Warning: %v\n", res.DetectorErr)
		}
		return nil
	},
}

func printRendered(out io.Writer, res pipeline.Result) {
	if res.Rendered != "" {
		fmt.Fprintf(out, "Chart rendered to %s\n", res.Rendered)
	}
	if res.RenderErr != nil {
		fmt.Fprintf(out, "Warning: rendering failed: %v\n", res.RenderErr)
	}
	if res.HookErr != nil {
		fmt.Fprintf(out, "Warning: post command failed: %v\n", res.HookErr)
	}
}
