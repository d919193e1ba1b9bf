// Command spellbook keeps a vector index of command-line spells in sync with
// a git registry and answers natural-language searches against it.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
