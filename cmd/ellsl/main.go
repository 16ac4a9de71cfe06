package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ellsl",
	Short: "EyeLogic gaze tracker to stream bridge",
	Long: `Bridges an EyeLogic gaze-tracking service to a push stream:

- Connect to the local or a remote EyeLogic service
- Start tracking at one of the device frame rates and publish every gaze
  sample as a 17-channel stream over WebSocket
- Calibrate and validate the tracker
- Discover EyeLogic servers on the network

Without a subcommand the interactive console starts; 'ellsl stream' streams headless.`,
	Version: formatVersion(version),
	Args:    cobra.NoArgs,
	RunE:    runConsole,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("ellsl {{.Version}} (commit %s, built %s)\n", commit, date))

	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(serversCmd)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Config file (YAML); ELLSL_* environment variables override it")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
