package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ArionMiles/finanzas/pkg/client"
	"github.com/ArionMiles/finanzas/pkg/config"
)

func newStatusCommand(opts *rootOptions) *cobra.Command {
	var checkAPI bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check configuration and authentication",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := &statusCheck{out: cmd.OutOrStdout(), allGood: true}
			s.run(cmd.Context(), opts, checkAPI, time.Now())
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkAPI, "check-api", false, "call the Gmail API with the cached token")

	return cmd
}

type statusCheck struct {
	out     io.Writer
	allGood bool
}

func (s *statusCheck) ok(format string, args ...any) {
	fmt.Fprintf(s.out, "✓ "+format+"\n", args...)
}

func (s *statusCheck) fail(format string, args ...any) {
	s.allGood = false
	fmt.Fprintf(s.out, "✗ "+format+"\n", args...)
}

func (s *statusCheck) run(ctx context.Context, opts *rootOptions, checkAPI bool, now time.Time) {
	fmt.Fprintln(s.out, "=== finanzas status ===")
	fmt.Fprintln(s.out)

	fmt.Fprint(s.out, "Config: ")
	cfg, err := opts.load()
	if err != nil {
		s.fail("%v", err)
		s.summary()
		return
	}
	if err := cfg.Validate(); err != nil {
		s.fail("%v", err)
	} else {
		s.ok("reader=%s writer=%s", cfg.ReaderPlugin, cfg.WriterPlugin)
	}

	registry, err := newRegistry()
	if err != nil {
		s.fail("%v", err)
		s.summary()
		return
	}

	fmt.Fprint(s.out, "Plugins: ")
	scopes, err := registry.GetAllScopes(cfg.ReaderPlugin, cfg.WriterPlugin)
	if err != nil {
		s.fail("%v", err)
		s.summary()
		return
	}
	s.ok("found")

	if len(scopes) > 0 {
		s.checkOAuth(ctx, cfg, scopes, checkAPI, now)
	} else {
		fmt.Fprintln(s.out, "OAuth: not needed")
	}

	if cfg.Postgres.Configured() {
		fmt.Fprintf(s.out, "Postgres: configured (%s)\n", describePostgres(cfg.Postgres))
	}

	s.summary()
}

func (s *statusCheck) checkOAuth(ctx context.Context, cfg config.Config, scopes []string, checkAPI bool, now time.Time) {
	fmt.Fprintf(s.out, "Credentials file (%s): ", cfg.ClientSecretFile)
	if _, err := os.Stat(cfg.ClientSecretFile); err != nil {
		s.fail("not found")
	} else {
		s.ok("found")
	}

	fmt.Fprintf(s.out, "OAuth token (%s): ", cfg.TokenFile)
	st, err := client.InspectToken(cfg.TokenFile, now)
	switch {
	case err != nil:
		s.fail("%v", err)
		return
	case !st.Exists:
		s.fail("not found (run 'finanzas setup')")
		return
	case st.AccessExpired && !st.HasRefresh:
		s.fail("expired and no refresh token (run 'finanzas setup --force')")
		return
	case st.AccessExpired:
		fmt.Fprintln(s.out, "⚠ expired (will refresh on next run)")
	default:
		s.ok("valid (expires: %s)", st.Expiry.Format(time.RFC3339))
	}

	if !checkAPI || cfg.ReaderPlugin != "gmail" {
		return
	}

	fmt.Fprint(s.out, "Gmail API: ")
	httpClient, err := client.New(ctx, client.Options{
		SecretFile: cfg.ClientSecretFile,
		TokenFile:  cfg.TokenFile,
		Scopes:     scopes,
	})
	if err != nil {
		s.fail("%v", err)
		return
	}
	if err := pingGmail(ctx, httpClient); err != nil {
		s.fail("%v", err)
		return
	}
	s.ok("connected")
}

func (s *statusCheck) summary() {
	fmt.Fprintln(s.out)
	if s.allGood {
		fmt.Fprintln(s.out, "Status: ✓ ready to run")
		return
	}
	fmt.Fprintln(s.out, "Status: ✗ configuration issues detected")
}

func pingGmail(ctx context.Context, httpClient *http.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}
	if _, err := svc.Users.Labels.List("me").Context(ctx).Do(); err != nil {
		return fmt.Errorf("API call failed: %w", err)
	}
	return nil
}

func describePostgres(p config.PostgresConfig) string {
	if p.DSN != "" {
		return "dsn"
	}
	return fmt.Sprintf("%s/%s", p.Host, p.Database)
}
