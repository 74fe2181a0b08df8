package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bootchartd/internal/boot"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "bootchartd [command]",
	Short: "bootchartd: boot-time profiling orchestrator",
	Long: `bootchartd runs the bootchart collector during boot or on demand, waits
for boot to complete and packages the samples into an archive for rendering.

When started by the kernel as init it starts the collector and then executes
the real init (/sbin/init, or the one named by bootchart_init= or init=).`,
	Args:               cobra.ArbitraryArgs,
	FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
	SilenceUsage:       true,
	SilenceErrors:      true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Usage()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a configuration file (default ./bootchartd.conf, then /etc/bootchartd.conf)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
}

func main() {
	if boot.CurrentIdentity().IsInit {
		os.Exit(runInit(os.Args[1:]))
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
