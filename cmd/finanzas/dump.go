package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/spf13/cobra"
	"google.golang.org/api/gmail/v1"

	"github.com/ArionMiles/finanzas/pkg/api"
	"github.com/ArionMiles/finanzas/pkg/client"
	"github.com/ArionMiles/finanzas/pkg/extractor"
	"github.com/ArionMiles/finanzas/pkg/logging"
	gmailsource "github.com/ArionMiles/finanzas/pkg/reader/gmail"
)

const defaultDumpDir = "testdata/dump"

func newDumpCommand(opts *rootOptions) *cobra.Command {
	var (
		dir        string
		window     string
		maxResults int64
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Save bank notification emails from Gmail as JSON fixtures",
		Long: `Dump fetches the emails the gmail reader would process and writes each one
as a RawEmail JSON file. The files can be fed back to 'finanzas parse'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			logger := logging.Setup(cfg.Logging())
			ctx := cmd.Context()

			httpClient, err := client.New(ctx, client.Options{
				SecretFile: cfg.ClientSecretFile,
				TokenFile:  cfg.TokenFile,
				Scopes:     []string{gmail.GmailReadonlyScope},
				Logger:     logger.With("component", "oauth"),
			})
			if err != nil {
				return fmt.Errorf("creating http client: %w", err)
			}

			reader, err := gmailsource.New(httpClient, gmailsource.Config{
				Window:     window,
				MaxResults: maxResults,
			}, logger.With("component", "gmail_reader"))
			if err != nil {
				return err
			}

			emails, err := reader.FetchEmails(ctx)
			if err != nil {
				return fmt.Errorf("fetching emails: %w", err)
			}

			n, err := dumpEmails(dir, emails, extractor.NewRouter(extractor.DefaultSenders()))
			if err != nil {
				return err
			}
			logger.Info("email dump complete", "total_dumped", n, "directory", dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", defaultDumpDir, "directory to write fixtures to")
	cmd.Flags().StringVar(&window, "window", gmailsource.DefaultWindow, "Gmail newer_than window")
	cmd.Flags().Int64Var(&maxResults, "max", 50, "maximum number of messages to fetch")

	return cmd
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// dumpEmails writes each email to dir as <bank>_<received>_<id>.json.
func dumpEmails(dir string, emails []api.RawEmail, router *extractor.Router) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating dump directory: %w", err)
	}

	n := 0
	for _, email := range emails {
		bank, ok := router.Route(email.From)
		if !ok {
			bank = api.BankOther
		}
		received := "unknown"
		if !email.ReceivedAt.IsZero() {
			received = email.ReceivedAt.UTC().Format("2006-01-02_150405")
		}
		name := fmt.Sprintf("%s_%s_%s.json", bank, received, unsafeFileChars.ReplaceAllString(email.ID, "_"))

		data, err := json.MarshalIndent(email, "", "  ")
		if err != nil {
			return n, fmt.Errorf("encoding %s: %w", email.ID, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), append(data, '\n'), 0o644); err != nil {
			return n, fmt.Errorf("writing %s: %w", name, err)
		}
		n++
	}
	return n, nil
}
