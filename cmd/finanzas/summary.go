package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/finanzas/internal/plugins"
	"github.com/ArionMiles/finanzas/pkg/api"
	"github.com/ArionMiles/finanzas/pkg/config"
	"github.com/ArionMiles/finanzas/pkg/logging"
	postgresplugin "github.com/ArionMiles/finanzas/pkg/plugins/writers/postgres"
	"github.com/ArionMiles/finanzas/pkg/writer/postgres"
)

const dateLayout = "2006-01-02"

func newSummaryCommand(opts *rootOptions) *cobra.Command {
	var since, until, bank string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print totals per type and expenses per category from PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := parseFilter(since, until, bank)
			if err != nil {
				return err
			}

			cfg, err := opts.load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			logger := logging.Setup(cfg.Logging())

			pgCfg, err := summaryDatabase(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := postgres.Open(ctx, pgCfg, logger.With("component", "postgres"))
			if err != nil {
				return err
			}
			defer store.Close()

			totals, err := store.Totals(ctx, filter)
			if err != nil {
				return err
			}
			categories, err := store.CategoryTotals(ctx, filter)
			if err != nil {
				return err
			}

			return printSummary(cmd.OutOrStdout(), totals, categories)
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "first day to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&until, "until", "", "first day to exclude (YYYY-MM-DD)")
	cmd.Flags().StringVar(&bank, "bank", "", "only include one bank (bancolombia, nubank)")

	return cmd
}

func parseFilter(since, until, bank string) (postgres.Filter, error) {
	var f postgres.Filter
	var err error
	if since != "" {
		if f.Since, err = time.Parse(dateLayout, since); err != nil {
			return f, fmt.Errorf("--since: %w", err)
		}
	}
	if until != "" {
		if f.Until, err = time.Parse(dateLayout, until); err != nil {
			return f, fmt.Errorf("--until: %w", err)
		}
	}
	switch api.Bank(bank) {
	case "", api.BankBancolombia, api.BankNubank:
		f.Bank = api.Bank(bank)
	default:
		return f, fmt.Errorf("--bank: unsupported bank %q", bank)
	}
	return f, nil
}

// summaryDatabase prefers POSTGRES_* and falls back to the postgres writer's config.
func summaryDatabase(cfg config.Config) (postgres.Config, error) {
	if cfg.Postgres.Configured() {
		p := cfg.Postgres
		return postgres.Config{
			DSN:      p.DSN,
			Host:     p.Host,
			Port:     p.Port,
			Database: p.Database,
			User:     p.User,
			Password: p.Password,
			SSLMode:  p.SSLMode,
		}, nil
	}

	if cfg.WriterPlugin == "postgres" {
		var pc postgresplugin.Config
		if err := plugins.DecodeConfig(cfg.WriterConfig, &pc); err != nil {
			return postgres.Config{}, err
		}
		if err := pc.Validate(); err != nil {
			return postgres.Config{}, fmt.Errorf("FINANZAS_WRITER_CONFIG: %w", err)
		}
		return pc.WriterConfig(), nil
	}

	return postgres.Config{}, errors.New("no database configured: set POSTGRES_DSN or POSTGRES_HOST")
}

func printSummary(out io.Writer, totals, categories []postgres.Total) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintln(tw, "Tipo\tCantidad\tTotal\t")
	for _, t := range totals {
		fmt.Fprintf(tw, "%s\t%d\t%s\t\n", t.Key, t.Count, t.Sum.StringFixed(2))
	}
	fmt.Fprintln(tw, "\t\t\t")
	fmt.Fprintln(tw, "Categoría\tCantidad\tGasto\t")
	for _, t := range categories {
		fmt.Fprintf(tw, "%s\t%d\t%s\t\n", t.Key, t.Count, t.Sum.StringFixed(2))
	}

	return tw.Flush()
}
