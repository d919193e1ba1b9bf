package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	flagConfig string
	flagOutput string
)

var rootCmd = &cobra.Command{
	Use:          "spellbook",
	Short:        "Spellbook keeps a searchable index of registry commands",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `Spellbook watches a git registry of command manifests, keeps a vector
index in agreement with it on every push and answers semantic searches.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch flagOutput {
		case "text", "json", "yaml":
			return nil
		default:
			return fmt.Errorf("unknown output format %q (want text, json or yaml)", flagOutput)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (YAML, JSON or TOML)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "text", "Output format: text, json or yaml")
}

// render writes v in the selected output format; text falls back to the given printer.
func render(w io.Writer, v any, text func(io.Writer)) error {
	switch flagOutput {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(w)
		return nil
	}
}
