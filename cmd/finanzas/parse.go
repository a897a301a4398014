package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/finanzas/pkg/api"
	"github.com/ArionMiles/finanzas/pkg/categorize"
	"github.com/ArionMiles/finanzas/pkg/extractor"
	"github.com/ArionMiles/finanzas/pkg/reader/mbox"
)

func newParseCommand() *cobra.Command {
	var labelsFile string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "parse FILE...",
		Short: "Extract transactions from saved emails and print them as JSON lines",
		Long: `Parse reads saved emails and prints one JSON transaction per line.

Files ending in .mbox are read as mailboxes, .json files hold one RawEmail or
an array of them (as written by dump), anything else is read as a single
RFC 5322 message (.eml).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			labels, err := loadLabels(labelsFile)
			if err != nil {
				return err
			}

			p := &parser{
				extractor:   extractor.Default(),
				categorizer: categorize.New(labels),
				out:         json.NewEncoder(cmd.OutOrStdout()),
				errOut:      cmd.ErrOrStderr(),
				verbose:     verbose,
			}
			for _, path := range args {
				if err := p.parseFile(path); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "%d emails, %d transactions\n", p.emails, p.transactions)
			return nil
		},
	}

	cmd.Flags().StringVar(&labelsFile, "labels", "", "JSON file mapping merchants to categories")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "report skipped emails on stderr")

	return cmd
}

type parser struct {
	extractor   *extractor.Extractor
	categorizer *categorize.Categorizer
	out         *json.Encoder
	errOut      io.Writer
	verbose     bool

	emails       int
	transactions int
}

func (p *parser) parseFile(path string) error {
	emails, err := readEmails(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	for _, email := range emails {
		p.emails++
		txn, err := p.extractor.Extract(email)
		if err != nil {
			if p.verbose {
				fmt.Fprintf(p.errOut, "skipped %s (%q): %v\n", email.ID, email.Subject, err)
			}
			continue
		}
		p.categorizer.Apply(txn)
		if err := p.out.Encode(txn); err != nil {
			return fmt.Errorf("writing transaction: %w", err)
		}
		p.transactions++
	}
	return nil
}

func readEmails(path string) ([]api.RawEmail, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return readJSONEmails(path)
	case ".mbox":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return mbox.ReadEmails(f)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		email, err := mbox.ParseMessage(f)
		if err != nil {
			return nil, err
		}
		if email.ID == "" {
			email.ID = filepath.Base(path)
		}
		return []api.RawEmail{email}, nil
	}
}

func readJSONEmails(path string) ([]api.RawEmail, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("[")) {
		var emails []api.RawEmail
		if err := json.Unmarshal(data, &emails); err != nil {
			return nil, fmt.Errorf("decoding emails: %w", err)
		}
		return emails, nil
	}

	var email api.RawEmail
	if err := json.Unmarshal(data, &email); err != nil {
		return nil, fmt.Errorf("decoding email: %w", err)
	}
	return []api.RawEmail{email}, nil
}

func loadLabels(path string) (api.Labels, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading labels: %w", err)
	}
	var labels api.Labels
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("parsing labels: %w", err)
	}
	return labels, nil
}
