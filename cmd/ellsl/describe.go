package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/ellsl/internal/outlet"
)

// describeCmd represents the describe command
var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Print the stream description consumers receive",
	Long: `Print the description of the gaze stream: identity, nominal rate and
the 17 channels with their labels, eye, type and unit.`,
	Args: cobra.NoArgs,
	RunE: runDescribe,
}

var (
	describeRate   int
	describeSerial uint64
	describeFormat string
)

func init() {
	describeCmd.Flags().IntVarP(&describeRate, "rate", "r", 0, "Nominal rate [hz] (default from config)")
	describeCmd.Flags().Uint64Var(&describeSerial, "serial", 0, "Device serial (default: simulator serial)")
	describeCmd.Flags().StringVarP(&describeFormat, "format", "f", "yaml", "Output format (yaml, json)")
}

func runDescribe(cmd *cobra.Command, _ []string) error {
	if describeFormat != "yaml" && describeFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [yaml json]", describeFormat)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true
	defer a.close()

	rate := describeRate
	if rate <= 0 {
		rate = a.cfg.DefaultRate
	}
	serial := describeSerial
	if serial == 0 {
		serial = a.cfg.Simulator.Serial
	}

	out, err := renderStreamInfo(outlet.GazeStreamInfo(serial, rate), describeFormat)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func renderStreamInfo(info outlet.StreamInfo, format string) ([]byte, error) {
	if format == "json" {
		out, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode stream description: %w", err)
		}
		return append(out, '\n'), nil
	}
	return info.YAML()
}
