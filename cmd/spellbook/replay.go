package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var flagReplayLimit int

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Retry entries that failed to embed or index",
	Long:  `Drain the ledger's failure queue. Requires ledger.path to be set.`,
	Args:  cobra.NoArgs,
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().IntVar(&flagReplayLimit, "limit", 0, "Maximum number of queued failures to retry (0 for all)")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.engine.Replay(cmd.Context(), flagReplayLimit)
	if report != nil {
		if rerr := render(cmd.OutOrStdout(), report, func(w io.Writer) { printReport(w, report) }); rerr != nil {
			return rerr
		}
	}
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	return nil
}
