package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/finanzas/internal/plugins"
	"github.com/ArionMiles/finanzas/pkg/api"
	"github.com/ArionMiles/finanzas/pkg/config"
	"github.com/ArionMiles/finanzas/pkg/logging"
)

type sliceReader struct {
	txns  []*api.Transaction
	block bool
	err   error
}

func (r *sliceReader) Read(ctx context.Context, out chan<- *api.Transaction, _ <-chan string) error {
	defer close(out)
	for _, t := range r.txns {
		select {
		case out <- t:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return r.err
}

type collectWriter struct {
	mu  sync.Mutex
	got []*api.Transaction
	err error
}

func (w *collectWriter) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	for {
		select {
		case t, ok := <-in:
			if !ok {
				return w.err
			}
			w.mu.Lock()
			w.got = append(w.got, t)
			w.mu.Unlock()
			ackChan <- t.SourceID
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *collectWriter) transactions() []*api.Transaction {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*api.Transaction(nil), w.got...)
}

type fakeReaderPlugin struct {
	reader *sliceReader
	config json.RawMessage
}

func (p *fakeReaderPlugin) Name() string                 { return "fake" }
func (p *fakeReaderPlugin) Description() string          { return "fake reader" }
func (p *fakeReaderPlugin) RequiredScopes() []string     { return nil }
func (p *fakeReaderPlugin) ConfigSchema() map[string]any { return nil }
func (p *fakeReaderPlugin) NewReader(_ *http.Client, config json.RawMessage, _ *slog.Logger) (api.Reader, error) {
	p.config = config
	return p.reader, nil
}

type fakeWriterPlugin struct {
	writer *collectWriter
	err    error
}

func (p *fakeWriterPlugin) Name() string                 { return "memory" }
func (p *fakeWriterPlugin) Description() string          { return "in-memory writer" }
func (p *fakeWriterPlugin) RequiredScopes() []string     { return nil }
func (p *fakeWriterPlugin) ConfigSchema() map[string]any { return nil }
func (p *fakeWriterPlugin) NewWriter(_ *http.Client, _ json.RawMessage, _ *slog.Logger) (api.Writer, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.writer, nil
}

func txn(sourceID string) *api.Transaction {
	return &api.Transaction{
		ID:       sourceID,
		SourceID: sourceID,
		Amount:   decimal.NewFromInt(92900),
		Currency: api.CurrencyCOP,
		Bank:     api.BankBancolombia,
		Type:     api.TypeExpense,
	}
}

func newRunner(t *testing.T, reader *sliceReader, writer *fakeWriterPlugin) (*Runner, *fakeReaderPlugin) {
	t.Helper()
	reg := plugins.NewRegistry()
	rp := &fakeReaderPlugin{reader: reader}
	require.NoError(t, reg.RegisterReader(rp))
	require.NoError(t, reg.RegisterWriter(writer))
	return New(reg, nil, logging.Discard()), rp
}

func TestRun_DrainsWhenReaderFinishes(t *testing.T) {
	w := &collectWriter{}
	runner, rp := newRunner(t,
		&sliceReader{txns: []*api.Transaction{txn("a"), txn("b"), txn("c")}},
		&fakeWriterPlugin{writer: w},
	)

	err := runner.Run(context.Background(), config.Config{
		ReaderPlugin: "fake",
		WriterPlugin: "memory",
		ReaderConfig: json.RawMessage(`{"path":"x.mbox"}`),
	})
	require.NoError(t, err)

	got := w.transactions()
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[2].SourceID)
	assert.JSONEq(t, `{"path":"x.mbox"}`, string(rp.config))
}

func TestRun_CancelIsNotAnError(t *testing.T) {
	w := &collectWriter{}
	runner, _ := newRunner(t,
		&sliceReader{txns: []*api.Transaction{txn("a")}, block: true},
		&fakeWriterPlugin{writer: w},
	)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- runner.Run(ctx, config.Config{ReaderPlugin: "fake", WriterPlugin: "memory"})
	}()

	require.Eventually(t, func() bool { return len(w.transactions()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ReportsErrors(t *testing.T) {
	w := &collectWriter{err: errors.New("disk full")}
	runner, _ := newRunner(t,
		&sliceReader{err: errors.New("mailbox gone")},
		&fakeWriterPlugin{writer: w},
	)

	err := runner.Run(context.Background(), config.Config{ReaderPlugin: "fake", WriterPlugin: "memory"})
	assert.ErrorContains(t, err, "reader: mailbox gone")
	assert.ErrorContains(t, err, "writer: disk full")
}

func TestRun_Configuration(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		wantErr string
	}{
		{"no reader", config.Config{WriterPlugin: "memory"}, "FINANZAS_READER is required"},
		{"no writer", config.Config{ReaderPlugin: "fake"}, "FINANZAS_WRITER is required"},
		{"unknown reader", config.Config{ReaderPlugin: "imap", WriterPlugin: "memory"}, `reader plugin "imap" not found`},
		{"unknown writer", config.Config{ReaderPlugin: "fake", WriterPlugin: "excel"}, `writer plugin "excel" not found`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			runner, _ := newRunner(t, &sliceReader{}, &fakeWriterPlugin{writer: &collectWriter{}})
			assert.ErrorContains(t, runner.Run(context.Background(), tc.cfg), tc.wantErr)
		})
	}
}

func TestRun_WriterCreationFails(t *testing.T) {
	runner, _ := newRunner(t, &sliceReader{}, &fakeWriterPlugin{err: errors.New("bad dsn")})

	err := runner.Run(context.Background(), config.Config{ReaderPlugin: "fake", WriterPlugin: "memory"})
	assert.ErrorContains(t, err, "creating writer: bad dsn")
}
