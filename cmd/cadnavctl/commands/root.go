package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// outputFormat controls the output format for all commands (text or json).
	outputFormat string

	// serverAddr is the relay daemon address (host:port).
	serverAddr string
)

// rootCmd is the top-level cobra command for cadnavctl.
var rootCmd = &cobra.Command{
	Use:   "cadnavctl",
	Short: "CLI client for the CadNav relay daemon",
	Long:  "cadnavctl talks to the cadnavd relay over HTTP and WebSocket to probe health and observe sessions.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:4000",
		"cadnavd address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text",
		"output format: text, json")

	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(joinCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
