package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"bootchartd/internal/app"
)

func init() {
	rootCmd.AddCommand(cmdStatus)
}

var (
	statusWatch          bool
	statusJSON           bool
	statusTimeoutSeconds int
)

func init() {
	cmdStatus.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Follow the waiting detector until boot completes")
	cmdStatus.Flags().BoolVar(&statusJSON, "json", false, "Print the status as JSON")
	cmdStatus.Flags().IntVarP(&statusTimeoutSeconds, "timeout", "t", 2, "Timeout in seconds for detector queries")
}

var cmdStatus = &cobra.Command{
	Use:   "status",
	Short: "Show collector, detector and archive state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		timeout := time.Duration(statusTimeoutSeconds) * time.Second
		ctrl := controller()

		if statusWatch {
			err := ctrl.WatchDetector(cmd.Context(), timeout, func(d app.DetectorStatus) {
				fmt.Fprintf(out, "detector %s\n", d.State)
			})
			if errors.Is(err, app.ErrDetectorNotRunning) {
				fmt.Fprintln(out, "No detector is waiting")
				return nil
			}
			return err
		}

		rep, err := ctrl.Status(cmd.Context(), timeout)
		if err != nil {
			return err
		}
		if statusJSON {
			data, err := rep.JSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		printStatus(out, rep)
		return nil
	},
}

func printStatus(out io.Writer, rep app.StatusReport) {
	if rep.CollectorRunning {
		fmt.Fprintf(out, "Collector: running (pid %d)\n", rep.Collector.PID)
	} else {
		fmt.Fprintln(out, "Collector: not running")
	}

	if rep.Detector.Running {
		fmt.Fprintf(out, "Detector:  %s (pid %d)\n", rep.Detector.State, rep.Detector.PID)
	} else {
		fmt.Fprintln(out, "Detector:  not waiting")
	}

	if rep.Archive.Exists {
		fmt.Fprintf(out, "Archive:   %s (%d bytes, %s)\n", rep.Archive.Path, rep.Archive.Size, rep.Archive.ModTime.Format(time.RFC3339))
	} else {
		fmt.Fprintf(out, "Archive:   %s (missing)\n", rep.Archive.Path)
	}
}
