package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/keyrelay/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit <path>",
	Short: "Display a request audit log",
	Args:  cobra.ExactArgs(1),
	RunE:  runAudit,
}

var (
	auditJSON bool
	auditTail int
)

func init() {
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "Output entries as JSON lines")
	auditCmd.Flags().IntVarP(&auditTail, "tail", "n", 0, "Show only the last N entries (0 = all)")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	path := args[0]

	entries, err := audit.Read(path)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	if len(entries) == 0 {
		logInfo("No entries found in %s", path)
		return nil
	}
	if auditTail > 0 && len(entries) > auditTail {
		entries = entries[len(entries)-auditTail:]
	}

	out := cmd.OutOrStdout()
	for _, e := range entries {
		if auditJSON {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to marshal entry: %w", err)
			}
			fmt.Fprintln(out, string(data))
			continue
		}

		ts := e.Timestamp.Local().Format("2006-01-02 15:04:05")
		key := "-"
		if e.KeyIndex >= 0 {
			key = fmt.Sprintf("#%d", e.KeyIndex)
		}
		line := fmt.Sprintf("[%s] %-6s %d %-6s key=%-3s %8s %s",
			ts, e.Method, e.StatusCode, e.Placement, key, e.Duration.Round(time.Millisecond), e.Path)
		if e.Error != "" {
			line += dimStyle.Render(" (" + e.Error + ")")
		}
		fmt.Fprintln(out, line)
	}

	return nil
}
