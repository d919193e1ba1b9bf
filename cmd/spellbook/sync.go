package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/synoet/spellbook/core"
	"github.com/synoet/spellbook/engine"
)

var (
	flagSyncRepo     string
	flagSyncBefore   string
	flagSyncAfter    string
	flagSyncAdded    []string
	flagSyncRemoved  []string
	flagSyncModified []string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the index with a commit range of the registry",
	Long: `Reconcile the index with the registry between --before and --after.

Without --added, --removed or --modified the trees of both commits are diffed
to find the changed manifests. Pass --before 0000000000000000000000000000000000000000
to index everything present at --after.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&flagSyncRepo, "repo", "", "Registry clone URL (defaults to registry.url)")
	syncCmd.Flags().StringVar(&flagSyncBefore, "before", core.ZeroHash, "Previous commit")
	syncCmd.Flags().StringVar(&flagSyncAfter, "after", "", "Current commit")
	syncCmd.Flags().StringSliceVar(&flagSyncAdded, "added", nil, "Manifest paths added between the commits")
	syncCmd.Flags().StringSliceVar(&flagSyncRemoved, "removed", nil, "Manifest paths removed between the commits")
	syncCmd.Flags().StringSliceVar(&flagSyncModified, "modified", nil, "Manifest paths modified between the commits")
	_ = syncCmd.MarkFlagRequired("after")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	rev := core.Revision{Before: flagSyncBefore, After: flagSyncAfter, RepoURL: flagSyncRepo}
	if rev.RepoURL == "" {
		rev.RepoURL = a.cfg.Registry.URL
	}
	if rev.RepoURL == "" {
		return fmt.Errorf("no repository: pass --repo or set registry.url")
	}

	ctx := cmd.Context()
	if a.cfg.Sync.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Sync.Timeout)
		defer cancel()
	}

	changes := core.Changes{Added: flagSyncAdded, Removed: flagSyncRemoved, Modified: flagSyncModified}
	var report *engine.Report
	if changes.Len() == 0 {
		report, err = a.engine.SyncTree(ctx, rev)
	} else {
		report, err = a.engine.Sync(ctx, rev, changes.Filter(a.filter))
	}
	if report != nil {
		if rerr := render(cmd.OutOrStdout(), report, func(w io.Writer) { printReport(w, report) }); rerr != nil {
			return rerr
		}
	}
	return err
}
