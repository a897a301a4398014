// Package daemon wires a reader plugin to a writer plugin and runs them until
// the reader finishes or the context is canceled.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/finanzas/internal/plugins"
	"github.com/ArionMiles/finanzas/pkg/api"
	"github.com/ArionMiles/finanzas/pkg/config"
)

// channelSize buffers transactions and acknowledgments between reader and writer.
const channelSize = 100

// Runner manages the reader/writer lifecycle.
type Runner struct {
	registry   *plugins.Registry
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a new daemon runner. httpClient may be nil when neither plugin
// needs OAuth.
func New(registry *plugins.Registry, httpClient *http.Client, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		registry:   registry,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Run blocks until the reader returns and the writer has drained, or until
// ctx is canceled. Cancellation is not reported as an error.
func (r *Runner) Run(ctx context.Context, cfg config.Config) error {
	if cfg.ReaderPlugin == "" {
		return errors.New("FINANZAS_READER is required")
	}
	if cfg.WriterPlugin == "" {
		return errors.New("FINANZAS_WRITER is required")
	}

	r.logger.Info("starting finanzas",
		"reader", cfg.ReaderPlugin,
		"writer", cfg.WriterPlugin,
	)

	reader, err := r.registry.CreateReader(
		cfg.ReaderPlugin,
		r.httpClient,
		cfg.ReaderConfig,
		r.logger.With("component", "reader", "plugin", cfg.ReaderPlugin),
	)
	if err != nil {
		return fmt.Errorf("creating reader: %w", err)
	}

	writer, err := r.registry.CreateWriter(
		cfg.WriterPlugin,
		r.httpClient,
		cfg.WriterConfig,
		r.logger.With("component", "writer", "plugin", cfg.WriterPlugin),
	)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}

	transactions := make(chan *api.Transaction, channelSize)
	ackChan := make(chan string, channelSize)

	writerDone := make(chan error, 1)
	go func() {
		writerDone <- writer.Write(ctx, transactions, ackChan)
	}()

	var errs []error
	// The reader closes transactions when it returns, which lets the writer flush and exit.
	if err := reader.Read(ctx, transactions, ackChan); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("reader error", "error", err)
		errs = append(errs, fmt.Errorf("reader: %w", err))
	}

	if err := <-writerDone; err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("writer error", "error", err)
		errs = append(errs, fmt.Errorf("writer: %w", err))
	}

	r.logger.Info("finanzas stopped")
	return errors.Join(errs...)
}
