package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/synoet/spellbook/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the manifest JSON Schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		doc := schema.Manifest()
		return render(cmd.OutOrStdout(), doc, func(w io.Writer) {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			_ = enc.Encode(doc)
		})
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
