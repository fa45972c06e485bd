package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/keyrelay/internal/errors"
	"github.com/firefly-engineering/keyrelay/internal/monitor"
	"github.com/firefly-engineering/keyrelay/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live view of a running proxy's key pool",
	Long: `Poll /health on a running proxy and show the key count and cursor.

In a terminal this opens an interactive view ([r] rotates, [q] quits).
With --plain, or when stdout is not a terminal, one line is printed per
poll until interrupted.`,
	SilenceUsage: true,
	RunE:         runWatch,
}

var (
	watchAddr     string
	watchInterval time.Duration
	watchPlain    bool
)

func init() {
	addAddrFlag(watchCmd, &watchAddr)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "Polling interval")
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "Print one line per poll instead of the interactive view")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchInterval <= 0 {
		return errors.ValidationError(fmt.Sprintf("invalid interval %s: must be positive", watchInterval))
	}

	c, err := newClient(watchAddr)
	if err != nil {
		return err
	}
	mon := monitor.New(watchInterval, c)

	if watchPlain || !isatty.IsTerminal(os.Stdout.Fd()) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		err := mon.Run(ctx, func(s monitor.Sample) { printSample(out, s) })
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	return tui.RunWatch(mon, c, c.Addr())
}

func printSample(w io.Writer, s monitor.Sample) {
	ts := s.At.Local().Format(time.TimeOnly)
	if s.Err != nil {
		fmt.Fprintf(w, "[%s] unreachable: %v\n", ts, s.Err)
		return
	}
	fmt.Fprintf(w, "[%s] %s keys=%d next=%d latency=%s\n",
		ts, s.Report.Status, s.Report.APIKeysConfigured, s.Report.CurrentKeyIndex,
		s.Latency.Round(time.Millisecond))
}
