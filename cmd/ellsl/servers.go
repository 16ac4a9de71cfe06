package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// serversCmd represents the servers command
var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List EyeLogic servers announced on the network",
	Args:  cobra.NoArgs,
	RunE:  runServers,
}

var serversTimeout time.Duration

func init() {
	serversCmd.Flags().DurationVarP(&serversTimeout, "timeout", "t", 0, "How long to collect announcements (default from config)")
}

func runServers(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true
	defer a.close()

	timeout := serversTimeout
	if timeout <= 0 {
		timeout = a.cfg.ServerListTimeout
	}
	return listServers(cmd.Context(), a, cmd.OutOrStdout(), timeout)
}

// listServers discovers servers with a short-lived client that never connects
func listServers(ctx context.Context, a *app, out io.Writer, timeout time.Duration) error {
	client, err := a.service.ClientFactory()(a.cfg.ClientName+"-discovery", a.logger)
	if err != nil {
		return fmt.Errorf("failed to create discovery client: %w", err)
	}

	fmt.Fprintf(out, "Searching for EyeLogic servers for %s...\n", timeout)
	servers := client.RequestServerList(ctx, timeout)
	if len(servers) == 0 {
		fmt.Fprintln(out, "No servers found")
		return nil
	}
	for i, s := range servers {
		fmt.Fprintf(out, "%d. %s\n", i+1, s)
	}
	return nil
}
