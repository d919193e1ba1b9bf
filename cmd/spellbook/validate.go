package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/synoet/spellbook/core"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Check manifests against the registry schema",
	Long:  `Validate each manifest file without touching the index. Use "-" to read standard input.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

type fileVerdict struct {
	Path         string `json:"path" yaml:"path"`
	core.Verdict `yaml:",inline"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	verdicts := make([]fileVerdict, 0, len(args))
	invalid := 0
	for _, path := range args {
		data, err := readInput(cmd.InOrStdin(), path)
		if err != nil {
			return err
		}
		v := fileVerdict{Path: path, Verdict: core.ValidateManifest(data)}
		if !v.Valid {
			invalid++
		}
		verdicts = append(verdicts, v)
	}

	err := render(cmd.OutOrStdout(), verdicts, func(w io.Writer) {
		for _, v := range verdicts {
			if v.Valid {
				fmt.Fprintf(w, "ok       %s\n", v.Path)
			} else {
				fmt.Fprintf(w, "invalid  %s: %s\n", v.Path, v.Reason)
			}
		}
	})
	if err != nil {
		return err
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d manifests invalid", invalid, len(args))
	}
	return nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
