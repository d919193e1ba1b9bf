package main

import (
	"fmt"
	"io"
	"time"

	"github.com/synoet/spellbook/engine"
)

func printReport(w io.Writer, r *engine.Report) {
	fmt.Fprintf(w, "deleted %d, upserted %d in %s\n", r.Deleted, r.Upserted, r.Duration.Round(time.Millisecond))
	for _, s := range r.Skipped {
		fmt.Fprintf(w, "skipped  %s (%s): %s\n", s.Path, s.Side, s.Reason)
	}
	for _, f := range r.EmbeddingFailures {
		fmt.Fprintf(w, "failed   %s %q: %s\n", f.Op, f.Command, f.Message)
	}
	for _, f := range r.IndexFailures {
		fmt.Fprintf(w, "failed   %s %q: %s\n", f.Op, f.Command, f.Message)
	}
}
