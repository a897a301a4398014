package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/finanzas/pkg/client"
	"github.com/ArionMiles/finanzas/pkg/logging"
)

func newSetupCommand(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Authorize finanzas to use Gmail and Google Sheets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			logger := logging.Setup(cfg.Logging())
			out := cmd.OutOrStdout()

			registry, err := newRegistry()
			if err != nil {
				return err
			}
			scopes, err := registry.GetAllScopes(cfg.ReaderPlugin, cfg.WriterPlugin)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "=== finanzas setup ===")
			fmt.Fprintln(out)

			if len(scopes) == 0 {
				fmt.Fprintf(out, "Reader %q and writer %q need no Google authorization.\n", cfg.ReaderPlugin, cfg.WriterPlugin)
				return nil
			}

			if _, err := os.Stat(cfg.ClientSecretFile); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("credentials file not found: %s\n\nTo get your credentials:\n"+
					"1. Go to https://console.cloud.google.com/apis/credentials\n"+
					"2. Create an OAuth 2.0 Client ID (Desktop application)\n"+
					"3. Download the JSON file and save it as '%s' (or set FINANZAS_CLIENT_SECRET)",
					cfg.ClientSecretFile, cfg.ClientSecretFile)
			}

			if !force {
				if _, err := os.Stat(cfg.TokenFile); err == nil {
					fmt.Fprintf(out, "Already authenticated! Token file exists: %s\n\n", cfg.TokenFile)
					fmt.Fprintln(out, "To re-authenticate, run: finanzas setup --force")
					return nil
				}
			}

			printScopes(out, scopes)

			if _, err := client.Authorize(cmd.Context(), client.Options{
				SecretFile: cfg.ClientSecretFile,
				TokenFile:  cfg.TokenFile,
				Scopes:     scopes,
				Prompt:     out,
				Logger:     logger.With("component", "oauth"),
			}); err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "=== Setup complete ===")
			fmt.Fprintf(out, "Token saved to: %s\n\n", cfg.TokenFile)
			fmt.Fprintln(out, "Run 'finanzas run' to start tracking transactions.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "re-authenticate even if a token exists")

	return cmd
}

func printScopes(out io.Writer, scopes []string) {
	fmt.Fprintln(out, "Requested permissions:")
	for _, s := range scopes {
		fmt.Fprintf(out, "  - %s\n", s)
	}
	fmt.Fprintln(out)
}
