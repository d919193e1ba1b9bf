package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/synoet/spellbook/engine"
)

var flagSearchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find commands by what they do",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&flagSearchLimit, "limit", "k", 0, "Number of results (0 uses search.default_limit)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	query := strings.Join(args, " ")
	results, err := a.engine.Search(cmd.Context(), query, flagSearchLimit)
	if err != nil {
		return err
	}
	if results == nil {
		results = []engine.Result{}
	}
	return render(cmd.OutOrStdout(), results, func(w io.Writer) {
		printResults(w, results)
	})
}

func printResults(w io.Writer, results []engine.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "no matching commands")
		return
	}
	for i, r := range results {
		fmt.Fprintf(w, "%d. %s\n   %s\n", i+1, r.Invocation, r.Description)
		for _, p := range r.Placeholders {
			fmt.Fprintf(w, "     <%s> %s\n", p.Name, p.Description)
		}
	}
}
