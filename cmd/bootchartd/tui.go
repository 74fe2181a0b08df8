package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bootchartd/internal/tui"
)

func init() {
	rootCmd.AddCommand(cmdTUI)
}

var runTUI = tui.Run

var cmdTUI = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive status view",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runTUI(controller()); err != nil {
			return fmt.Errorf("tui exited with error: %w", err)
		}
		return nil
	},
}
