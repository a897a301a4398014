// Package csv implements a Writer that writes transactions to a CSV file.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ArionMiles/finanzas/pkg/api"
	"github.com/ArionMiles/finanzas/pkg/writer/buffered"
)

// Header is the first row of every file this writer creates.
var Header = []string{"ID", "Fecha", "Banco", "Tipo", "Comercio", "Monto", "Moneda", "Categoria", "Mensaje"}

// Writer writes transactions to a CSV file with buffered batching.
type Writer struct {
	filePath string
	file     *os.File
	writer   *csv.Writer
	mu       sync.Mutex
	buffered *buffered.Writer
	logger   *slog.Logger
}

// Config holds configuration for the CSV writer.
type Config struct {
	// FilePath is the path to the CSV output file.
	FilePath string
	// BatchSize is the number of transactions to buffer before writing.
	BatchSize int
	// FlushInterval is the interval between automatic flushes.
	FlushInterval time.Duration
}

// New creates a new CSV writer. Rows are appended to an existing file.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FilePath == "" {
		return nil, errors.New("file path is required")
	}

	file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening csv file: %w", err)
	}

	w := &Writer{
		filePath: cfg.FilePath,
		file:     file,
		writer:   csv.NewWriter(file),
		logger:   logger,
	}

	stat, err := file.Stat()
	if err != nil {
		if closeErr := file.Close(); closeErr != nil {
			return nil, fmt.Errorf("stat csv file: %w (close error: %w)", err, closeErr)
		}
		return nil, fmt.Errorf("stat csv file: %w", err)
	}

	if stat.Size() == 0 {
		if err := w.writeHeaders(); err != nil {
			if closeErr := file.Close(); closeErr != nil {
				return nil, fmt.Errorf("writing headers: %w (close error: %w)", err, closeErr)
			}
			return nil, fmt.Errorf("writing headers: %w", err)
		}
	}

	w.buffered = buffered.New(w.flushBatch, buffered.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, logger.With("component", "csv_buffer"))

	logger.Info("csv writer initialized", "file", cfg.FilePath)
	return w, nil
}

func (w *Writer) writeHeaders() error {
	if err := w.writer.Write(Header); err != nil {
		return err
	}
	w.writer.Flush()
	return w.writer.Error()
}

// Write consumes transactions from the input channel and writes them to CSV.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	defer w.Close()
	return w.buffered.Write(ctx, in, ackChan)
}

// Record returns the CSV row for a transaction. Amounts keep their exact
// decimal form.
func Record(t *api.Transaction) []string {
	return []string{
		t.ID,
		t.OccurredAt.Format(time.RFC3339),
		string(t.Bank),
		string(t.Type),
		t.Merchant,
		t.Amount.String(),
		t.Currency,
		t.Category,
		t.SourceID,
	}
}

func (w *Writer) flushBatch(_ context.Context, transactions []*api.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, t := range transactions {
		if err := w.writer.Write(Record(t)); err != nil {
			return fmt.Errorf("writing csv record: %w", err)
		}
	}

	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}

	w.logger.Debug("wrote transactions to csv", "count", len(transactions))
	return nil
}

// Close closes the CSV file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.writer.Flush()
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing csv file: %w", err)
	}

	w.logger.Info("csv writer closed", "file", w.filePath)
	return nil
}
