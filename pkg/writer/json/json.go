// Package json implements a Writer that writes transactions to a JSON file.
package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ArionMiles/finanzas/pkg/api"
	"github.com/ArionMiles/finanzas/pkg/writer/buffered"
)

// Writer writes transactions to a JSON file with buffered batching. The file
// holds a single array; transactions whose ID is already present are skipped.
type Writer struct {
	filePath     string
	transactions []*api.Transaction
	known        map[string]struct{}
	mu           sync.Mutex
	buffered     *buffered.Writer
	logger       *slog.Logger
}

// Config holds configuration for the JSON writer.
type Config struct {
	// FilePath is the path to the JSON output file.
	FilePath string
	// BatchSize is the number of transactions to buffer before writing.
	BatchSize int
	// FlushInterval is the interval between automatic flushes.
	FlushInterval time.Duration
}

// New creates a new JSON writer.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FilePath == "" {
		return nil, errors.New("file path is required")
	}

	w := &Writer{
		filePath:     cfg.FilePath,
		transactions: make([]*api.Transaction, 0),
		known:        make(map[string]struct{}),
		logger:       logger,
	}

	if err := w.loadExisting(); err != nil {
		logger.Warn("could not load existing transactions", "error", err)
	}

	w.buffered = buffered.New(w.flushBatch, buffered.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, logger.With("component", "json_buffer"))

	logger.Info("json writer initialized", "file", cfg.FilePath, "existing_count", len(w.transactions))
	return w, nil
}

func (w *Writer) loadExisting() error {
	data, err := os.ReadFile(w.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, &w.transactions); err != nil {
		return err
	}
	for _, t := range w.transactions {
		w.known[t.ID] = struct{}{}
	}
	return nil
}

// Write consumes transactions from the input channel and writes them to JSON.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	return w.buffered.Write(ctx, in, ackChan)
}

// flushBatch rewrites the whole array; JSON does not support appending.
func (w *Writer) flushBatch(_ context.Context, transactions []*api.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	added := 0
	for _, t := range transactions {
		if _, ok := w.known[t.ID]; ok {
			continue
		}
		w.known[t.ID] = struct{}{}
		w.transactions = append(w.transactions, t)
		added++
	}

	data, err := json.MarshalIndent(w.transactions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}

	if err := os.WriteFile(w.filePath, data, 0o600); err != nil {
		return fmt.Errorf("writing json file: %w", err)
	}

	w.logger.Debug("wrote transactions to json",
		"batch_count", len(transactions),
		"added", added,
		"total_count", len(w.transactions),
	)
	return nil
}

// TransactionCount returns the total number of transactions written.
func (w *Writer) TransactionCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.transactions)
}
