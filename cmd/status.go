package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/keyrelay/internal/admin"
	"github.com/firefly-engineering/keyrelay/internal/client"
)

var statusCmd = &cobra.Command{
	Use:          "status",
	Short:        "Show the key pool of a running proxy",
	SilenceUsage: true,
	RunE:         runStatus,
}

var (
	statusAddr string
	statusRaw  bool
)

func init() {
	addAddrFlag(statusCmd, &statusAddr)
	statusCmd.Flags().BoolVar(&statusRaw, "raw", false, "Print the /health response as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := newClient(statusAddr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
	defer cancel()

	report, err := c.Health(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if statusRaw {
		return json.NewEncoder(out).Encode(report)
	}

	fmt.Fprintf(out, "Proxy: %s\n", c.Addr())
	fmt.Fprintf(out, "Status: %s\n", formatStatus(report.Status))
	fmt.Fprintf(out, "API keys: %d\n", report.APIKeysConfigured)
	if report.APIKeysConfigured > 0 {
		fmt.Fprintf(out, "Next key: %d\n", report.CurrentKeyIndex)
	}
	return nil
}

func formatStatus(status admin.Status) string {
	switch status {
	case admin.StatusHealthy:
		return okStyle.Render("✓ healthy")
	default:
		return string(status)
	}
}
