package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/finanzas/internal/daemon"
	"github.com/ArionMiles/finanzas/pkg/client"
	"github.com/ArionMiles/finanzas/pkg/logging"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Read notifications with FINANZAS_READER and write transactions with FINANZAS_WRITER",
		Long: `Run wires the configured reader plugin to the configured writer plugin.

The gmail reader polls until interrupted; the mbox reader stops once the
file has been read and every transaction has been written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), opts)
		},
	}
}

func runDaemon(ctx context.Context, opts *rootOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.Setup(cfg.Logging())

	registry, err := newRegistry()
	if err != nil {
		return fmt.Errorf("registering plugins: %w", err)
	}

	needsOAuth, err := registry.NeedsOAuth(cfg.ReaderPlugin, cfg.WriterPlugin)
	if err != nil {
		return err
	}

	var httpClient *http.Client
	if needsOAuth {
		scopes, err := registry.GetAllScopes(cfg.ReaderPlugin, cfg.WriterPlugin)
		if err != nil {
			return err
		}
		httpClient, err = client.New(ctx, client.Options{
			SecretFile:  cfg.ClientSecretFile,
			TokenFile:   cfg.TokenFile,
			Scopes:      scopes,
			Interactive: true,
			Logger:      logger.With("component", "oauth"),
		})
		if err != nil {
			return fmt.Errorf("creating http client: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return daemon.New(registry, httpClient, logger).Run(ctx, cfg)
}
