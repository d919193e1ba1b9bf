package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/synoet/spellbook/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook and search HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := api.Options{
		Addr:          a.cfg.Server.Addr,
		WebhookSecret: a.cfg.Webhook.Secret,
		AdminToken:    a.cfg.Server.AdminToken,
		SyncTimeout:   a.cfg.Sync.Timeout,
		Gatherer:      a.registry,
		Logger:        a.logger,
	}
	if a.ledger != nil {
		opts.Status = a.ledger
	}
	if opts.WebhookSecret == "" {
		a.logger.Warn("webhook secret not set; deliveries are not authenticated")
	}
	if opts.AdminToken == "" {
		a.logger.Warn("admin token not set; /index and /admin/replay are disabled")
	}
	srv := api.NewServer(a.engine, opts)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
