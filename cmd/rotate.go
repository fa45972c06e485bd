package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/keyrelay/internal/client"
)

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Skip to the next API key on a running proxy",
	Long: `Advance the key cursor of a running proxy by one without forwarding a
request. The skipped key is used again on the next full cycle.`,
	SilenceUsage: true,
	RunE:         runRotate,
}

var rotateAddr string

func init() {
	addAddrFlag(rotateCmd, &rotateAddr)
	rootCmd.AddCommand(rotateCmd)
}

func runRotate(cmd *cobra.Command, args []string) error {
	c, err := newClient(rotateAddr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
	defer cancel()

	result, err := c.Rotate(ctx)
	if err != nil {
		return err
	}

	logSuccess("%s: %d -> %d (of %d keys)", result.Message, result.PreviousIndex, result.CurrentIndex, result.TotalKeys)
	return nil
}
