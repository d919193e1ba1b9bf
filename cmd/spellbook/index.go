package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/synoet/spellbook/core"
)

var indexCmd = &cobra.Command{
	Use:   "index <manifest>",
	Short: "Embed and upsert every command of one manifest",
	Long:  `Index a manifest without diffing it against the registry. Use "-" to read standard input.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}
	m, err := core.ParseManifest(data)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.engine.IndexManifest(cmd.Context(), m)
	if report != nil {
		if rerr := render(cmd.OutOrStdout(), report, func(w io.Writer) { printReport(w, report) }); rerr != nil {
			return rerr
		}
	}
	return err
}
