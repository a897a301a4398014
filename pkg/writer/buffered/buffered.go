// Package buffered provides a buffered writer base for batch writes.
package buffered

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ArionMiles/finanzas/pkg/api"
)

// DefaultBatchSize is the default number of transactions to buffer before flushing.
const DefaultBatchSize = 10

// DefaultFlushInterval is the default interval between automatic flushes.
const DefaultFlushInterval = 30 * time.Second

// Flusher is called when the buffer needs to be flushed.
type Flusher func(ctx context.Context, transactions []*api.Transaction) error

// Config holds configuration for buffered writing.
type Config struct {
	// BatchSize is the number of transactions to buffer before flushing.
	// Defaults to DefaultBatchSize.
	BatchSize int
	// FlushInterval is the interval between automatic flushes.
	// Defaults to DefaultFlushInterval.
	FlushInterval time.Duration
}

// Writer buffers transactions and flushes them in batches. The source ID of
// every transaction in a batch is acknowledged once that batch is flushed.
type Writer struct {
	buffer  []*api.Transaction
	mu      sync.Mutex
	flusher Flusher
	config  Config
	logger  *slog.Logger
}

// New creates a new buffered writer with the given flusher function.
func New(flusher Flusher, cfg Config, logger *slog.Logger) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		buffer:  make([]*api.Transaction, 0, cfg.BatchSize),
		flusher: flusher,
		config:  cfg,
		logger:  logger,
	}
}

// Write consumes transactions from the input channel and buffers them for
// batch writes. It returns nil once in is closed and drained, or
// context.Canceled after a final flush when ctx ends.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	w.logger.Info("buffered writer started",
		"batch_size", w.config.BatchSize,
		"flush_interval", w.config.FlushInterval,
	)

	for {
		select {
		case <-ctx.Done():
			return w.handleShutdown(ackChan)
		case <-ticker.C:
			if err := w.flush(ctx, ackChan); err != nil {
				w.logger.Error("failed to flush on interval", "error", err)
			}
		case txn, ok := <-in:
			if !ok {
				w.logger.Info("input channel closed, flushing remaining buffer")
				return w.flush(ctx, ackChan)
			}
			if w.add(txn) {
				if err := w.flush(ctx, ackChan); err != nil {
					w.logger.Error("failed to flush on batch size", "error", err)
				}
			}
		}
	}
}

// handleShutdown flushes with a fresh context; ctx is already done.
func (w *Writer) handleShutdown(ackChan chan<- string) error {
	w.logger.Info("buffered writer stopping, flushing remaining buffer")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.flush(ctx, ackChan); err != nil {
		w.logger.Error("failed to flush on shutdown", "error", err)
	}
	return context.Canceled
}

func (w *Writer) add(txn *api.Transaction) bool {
	if txn == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffer = append(w.buffer, txn)
	return len(w.buffer) >= w.config.BatchSize
}

// flush writes all buffered transactions using the flusher function. A
// failed batch goes back to the front of the buffer for the next flush.
func (w *Writer) flush(ctx context.Context, ackChan chan<- string) error {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return nil
	}
	toFlush := make([]*api.Transaction, len(w.buffer))
	copy(toFlush, w.buffer)
	w.buffer = w.buffer[:0]
	w.mu.Unlock()

	w.logger.Debug("flushing buffer", "count", len(toFlush))

	if err := w.flusher(ctx, toFlush); err != nil {
		w.mu.Lock()
		w.buffer = append(toFlush, w.buffer...)
		w.mu.Unlock()
		return err
	}

	w.logger.Info("flushed transactions", "count", len(toFlush))
	w.acknowledge(toFlush, ackChan)
	return nil
}

// acknowledge does not block. An ack that does not fit in ackChan is dropped.
func (w *Writer) acknowledge(transactions []*api.Transaction, ackChan chan<- string) {
	if ackChan == nil {
		return
	}
	for _, txn := range transactions {
		if txn.SourceID == "" {
			continue
		}
		select {
		case ackChan <- txn.SourceID:
		default:
			w.logger.Warn("acknowledgment channel full, dropping ack", "source_id", txn.SourceID)
		}
	}
}

// BufferLen returns the current number of buffered transactions.
func (w *Writer) BufferLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}
