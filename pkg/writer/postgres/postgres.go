// Package postgres provides a PostgreSQL writer for transaction storage.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/finanzas/pkg/api"
	"github.com/ArionMiles/finanzas/pkg/writer/buffered"
)

//go:embed 001_create_transactions.sql
var migrationSQL string

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Config holds the PostgreSQL configuration.
type Config struct {
	// DSN is a full connection string. When set, the fields below are ignored.
	DSN string

	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// BatchSize is the number of transactions to buffer before writing.
	BatchSize int
	// FlushInterval is the time between automatic flushes.
	FlushInterval time.Duration

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// ConnString returns the DSN, or a URL built from the individual fields.
func (c Config) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

// Store reads and writes the transactions table.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to PostgreSQL and applies the schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", poolConfig.ConnConfig.Host,
		"port", poolConfig.ConnConfig.Port,
		"database", poolConfig.ConnConfig.Database,
	)

	s := &Store{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	s.logger.Info("running database migrations")
	if _, err := s.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	s.logger.Info("migrations completed successfully")
	return nil
}

// Insert stores transactions in one database transaction. Rows whose
// source_id already exists are left untouched. It returns the number of new rows.
func (s *Store) Insert(ctx context.Context, transactions []*api.Transaction) (int, error) {
	if len(transactions) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, t := range transactions {
		id, err := uuid.Parse(t.ID)
		if err != nil {
			return 0, fmt.Errorf("transaction %s: invalid id: %w", t.SourceID, err)
		}
		currency := t.Currency
		if currency == "" {
			currency = api.CurrencyCOP
		}

		query, args, err := psql.Insert("transactions").
			Columns("id", "source_id", "amount", "currency", "merchant", "bank", "type", "category", "occurred_at", "raw_excerpt").
			Values(id, t.SourceID, toNumeric(t.Amount), currency, t.Merchant, string(t.Bank), string(t.Type), t.Category, t.OccurredAt, t.RawExcerpt).
			Suffix("ON CONFLICT (source_id) DO NOTHING").
			ToSql()
		if err != nil {
			return 0, fmt.Errorf("building insert: %w", err)
		}
		batch.Queue(query, args...)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for i := range transactions {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("inserting transaction %d: %w", i, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return inserted, nil
}

// Filter narrows the rows aggregated by Totals and CategoryTotals.
type Filter struct {
	// Since and Until bound occurred_at, inclusive and exclusive. Zero means unbounded.
	Since time.Time
	Until time.Time
	Bank  api.Bank
}

func (f Filter) apply(q squirrel.SelectBuilder) squirrel.SelectBuilder {
	if !f.Since.IsZero() {
		q = q.Where(squirrel.GtOrEq{"occurred_at": f.Since})
	}
	if !f.Until.IsZero() {
		q = q.Where(squirrel.Lt{"occurred_at": f.Until})
	}
	if f.Bank != "" {
		q = q.Where(squirrel.Eq{"bank": string(f.Bank)})
	}
	return q
}

// Total is an aggregate over a group of transactions.
type Total struct {
	Key   string          `json:"key"`
	Count int64           `json:"count"`
	Sum   decimal.Decimal `json:"sum"`
}

// Totals sums transactions per type.
func (s *Store) Totals(ctx context.Context, f Filter) ([]Total, error) {
	return s.totals(ctx, "type", f.apply(psql.Select()))
}

// CategoryTotals sums expenses per category, largest first.
func (s *Store) CategoryTotals(ctx context.Context, f Filter) ([]Total, error) {
	q := f.apply(psql.Select()).Where(squirrel.Eq{"type": string(api.TypeExpense)})
	return s.totals(ctx, "category", q)
}

func (s *Store) totals(ctx context.Context, column string, q squirrel.SelectBuilder) ([]Total, error) {
	query, args, err := q.
		Columns(column, "COUNT(*)", "COALESCE(SUM(amount), 0)").
		From("transactions").
		GroupBy(column).
		OrderBy("3 DESC", column).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building totals query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying totals: %w", err)
	}
	defer rows.Close()

	var out []Total
	for rows.Next() {
		var (
			t   Total
			sum pgtype.Numeric
		)
		if err := rows.Scan(&t.Key, &t.Count, &sum); err != nil {
			return nil, fmt.Errorf("scanning totals: %w", err)
		}
		t.Sum = fromNumeric(sum)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading totals: %w", err)
	}
	return out, nil
}

// Count returns the number of stored transactions.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM transactions").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting transactions: %w", err)
	}
	return n, nil
}

// Close closes the database connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("closed PostgreSQL connection pool")
	}
}

func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

// Writer writes transactions to PostgreSQL in batches.
type Writer struct {
	store    *Store
	buffered *buffered.Writer
	logger   *slog.Logger
}

// New creates a new PostgreSQL writer.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, err := Open(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewWithStore(store, cfg, logger), nil
}

// NewWithStore creates a writer over an open store.
func NewWithStore(store *Store, cfg Config, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{store: store, logger: logger}
	w.buffered = buffered.New(w.flushBatch, buffered.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, logger.With("component", "postgres_buffer"))
	return w
}

// Write consumes transactions from the channel and writes them to PostgreSQL.
// Duplicates are acknowledged too; they are already stored.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction, ackChan chan<- string) error {
	return w.buffered.Write(ctx, in, ackChan)
}

func (w *Writer) flushBatch(ctx context.Context, transactions []*api.Transaction) error {
	inserted, err := w.store.Insert(ctx, transactions)
	if err != nil {
		return err
	}
	w.logger.Info("wrote transaction batch",
		"count", len(transactions),
		"inserted", inserted,
		"duplicates", len(transactions)-inserted,
	)
	return nil
}

// Close closes the underlying store.
func (w *Writer) Close() {
	w.store.Close()
}
