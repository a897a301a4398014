// Package gmail implements a Reader that extracts transactions from bank
// notifications in a Gmail mailbox.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ArionMiles/finanzas/pkg/api"
	"github.com/ArionMiles/finanzas/pkg/categorize"
	"github.com/ArionMiles/finanzas/pkg/extractor"
	"github.com/ArionMiles/finanzas/pkg/mailbody"
)

// Defaults for Config fields left zero.
const (
	DefaultInterval   = 5 * time.Minute
	DefaultWindow     = "90d"
	DefaultMaxResults = 250
	DefaultBatchSize  = 5
	DefaultBatchDelay = 500 * time.Millisecond
)

// retryDelay is the initial pause after a 429 response.
var retryDelay = 2 * time.Second

// Config holds configuration for the Gmail reader.
type Config struct {
	// Senders decides both the search query and the bank of each message.
	// Defaults to extractor.DefaultSenders.
	Senders extractor.SenderTable
	// Labels maps merchants to categories.
	Labels api.Labels
	// Interval between mailbox polls. Defaults to DefaultInterval.
	Interval time.Duration
	// Window is the Gmail newer_than window, e.g. "90d".
	Window string
	// MaxResults caps the messages listed per poll.
	MaxResults int64
	// BatchSize is the number of messages fetched concurrently.
	BatchSize int
	// BatchDelay is the pause between fetch batches.
	BatchDelay time.Duration
	// MarkAsRead removes the UNREAD label once a transaction is acknowledged.
	MarkAsRead bool
}

// Reader reads transactions from Gmail messages.
type Reader struct {
	client      *gmail.Service
	extractor   *extractor.Extractor
	categorizer *categorize.Categorizer
	query       string
	interval    time.Duration
	maxResults  int64
	batchSize   int
	batchDelay  time.Duration
	markAsRead  bool
	logger      *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// New creates a new Gmail reader.
func New(httpClient *http.Client, cfg Config, logger *slog.Logger) (*Reader, error) {
	client, err := gmail.NewService(context.Background(), option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return newReader(client, cfg, logger), nil
}

func newReader(client *gmail.Service, cfg Config, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Senders == nil {
		cfg.Senders = extractor.DefaultSenders()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Window == "" {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = DefaultBatchDelay
	}

	return &Reader{
		client:      client,
		extractor:   extractor.New(cfg.Senders),
		categorizer: categorize.New(cfg.Labels),
		query:       Query(cfg.Senders.Addresses(), cfg.Window),
		interval:    cfg.Interval,
		maxResults:  cfg.MaxResults,
		batchSize:   cfg.BatchSize,
		batchDelay:  cfg.BatchDelay,
		markAsRead:  cfg.MarkAsRead,
		logger:      logger,
		seen:        make(map[string]struct{}),
	}
}

// Query builds the Gmail search for messages from any of the senders.
func Query(senders []string, window string) string {
	terms := make([]string, 0, len(senders))
	for _, s := range senders {
		if s = strings.TrimSpace(s); s != "" {
			terms = append(terms, "from:"+s)
		}
	}
	q := "(" + strings.Join(terms, " OR ") + ")"
	if window != "" {
		q += " newer_than:" + window
	}
	return q
}

// Read polls the mailbox and sends extracted transactions to out until the
// context is canceled. Messages are only marked as read after their
// acknowledgment arrives on ackChan.
func (r *Reader) Read(ctx context.Context, out chan<- *api.Transaction, ackChan <-chan string) error {
	defer close(out)

	go r.handleAcknowledgments(ctx, ackChan)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.poll(ctx, out)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("gmail reader stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			r.poll(ctx, out)
		}
	}
}

func (r *Reader) handleAcknowledgments(ctx context.Context, ackChan <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msgID, ok := <-ackChan:
			if !ok {
				r.logger.Info("acknowledgment channel closed")
				return
			}
			if r.markAsRead {
				r.markRead(ctx, msgID)
			}
		}
	}
}

func (r *Reader) markRead(ctx context.Context, msgID string) {
	_, err := r.client.Users.Messages.Modify("me", msgID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		r.logger.Warn("failed to mark message as read", "message_id", msgID, "error", err)
		return
	}
	r.logger.Debug("marked message as read", "message_id", msgID)
}

func (r *Reader) poll(ctx context.Context, out chan<- *api.Transaction) {
	emails, err := r.FetchEmails(ctx)
	if err != nil {
		r.logger.Error("failed to fetch messages", "error", err)
		return
	}

	sent := 0
	for _, email := range emails {
		r.remember(email.ID)

		txn, err := r.extractor.Extract(email)
		if err != nil {
			r.logger.Debug("skipping message", "message_id", email.ID, "subject", email.Subject, "reason", err)
			continue
		}
		r.categorizer.Apply(txn)

		r.logger.Debug("extracted transaction",
			"message_id", email.ID,
			"bank", txn.Bank,
			"type", txn.Type,
			"amount", txn.Amount,
			"merchant", txn.Merchant,
			"category", txn.Category,
		)

		select {
		case <-ctx.Done():
			return
		case out <- txn:
			sent++
		}
	}

	r.logger.Info("poll complete", "fetched", len(emails), "transactions", sent)
}

// FetchEmails lists matching messages not seen by this reader and fetches
// them in small concurrent batches.
func (r *Reader) FetchEmails(ctx context.Context) ([]api.RawEmail, error) {
	var resp *gmail.ListMessagesResponse
	err := withRetry(ctx, r.logger, func() error {
		var err error
		resp, err = r.client.Users.Messages.List("me").Q(r.query).MaxResults(r.maxResults).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if !r.isSeen(m.Id) {
			ids = append(ids, m.Id)
		}
	}
	r.logger.Info("found messages", "listed", len(resp.Messages), "new", len(ids))

	emails := make([]api.RawEmail, 0, len(ids))
	for start := 0; start < len(ids); start += r.batchSize {
		if start > 0 {
			select {
			case <-ctx.Done():
				return emails, ctx.Err()
			case <-time.After(r.batchDelay):
			}
		}
		end := min(start+r.batchSize, len(ids))
		emails = append(emails, r.fetchBatch(ctx, ids[start:end])...)
	}

	return emails, nil
}

func (r *Reader) fetchBatch(ctx context.Context, ids []string) []api.RawEmail {
	results := make([]*api.RawEmail, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var msg *gmail.Message
			err := withRetry(ctx, r.logger, func() error {
				var err error
				msg, err = r.client.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
				return err
			})
			if err != nil {
				r.logger.Warn("failed to get message", "message_id", id, "error", err)
				return
			}
			email := ToRawEmail(msg)
			results[i] = &email
		}()
	}
	wg.Wait()

	emails := make([]api.RawEmail, 0, len(ids))
	for _, e := range results {
		if e != nil {
			emails = append(emails, *e)
		}
	}
	return emails
}

func (r *Reader) remember(id string) {
	r.mu.Lock()
	r.seen[id] = struct{}{}
	r.mu.Unlock()
}

func (r *Reader) isSeen(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[id]
	return ok
}

// withRetry retries fn while Gmail answers 429 Too Many Requests.
func withRetry(ctx context.Context, logger *slog.Logger, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			if isRateLimited(err) {
				logger.Warn("rate limited, will retry", "error", err)
				return true
			}
			return false
		}),
		retry.Attempts(3),
		retry.Delay(retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

func isRateLimited(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests
}

// ToRawEmail converts a message fetched in "full" format. The body prefers
// the text/plain part, then text/html flattened to text, then the payload body.
func ToRawEmail(msg *gmail.Message) api.RawEmail {
	email := api.RawEmail{
		ID:      msg.Id,
		Snippet: msg.Snippet,
	}
	if msg.InternalDate > 0 {
		email.ReceivedAt = time.UnixMilli(msg.InternalDate).UTC()
	}
	if msg.Payload == nil {
		return email
	}

	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			email.From = h.Value
		case "subject":
			email.Subject = h.Value
		case "date":
			email.Date = h.Value
		}
	}
	email.Body = extractBody(msg.Payload)
	return email
}

func extractBody(payload *gmail.MessagePart) string {
	if part := findPart(payload, "text/plain"); part != nil {
		if text := decodePart(part); text != "" {
			return text
		}
	}
	if part := findPart(payload, "text/html"); part != nil {
		if text := decodePart(part); text != "" {
			return mailbody.HTMLToText(text)
		}
	}
	if payload.Body != nil && payload.Body.Data != "" {
		text := decodePart(payload)
		if mailbody.LooksLikeHTML(text) {
			return mailbody.HTMLToText(text)
		}
		return text
	}
	return ""
}

// findPart returns the first part of the given MIME type, searching nested
// multiparts depth first.
func findPart(part *gmail.MessagePart, mimeType string) *gmail.MessagePart {
	for _, p := range part.Parts {
		if strings.EqualFold(p.MimeType, mimeType) && p.Body != nil && p.Body.Data != "" {
			return p
		}
		if found := findPart(p, mimeType); found != nil {
			return found
		}
	}
	return nil
}

func decodePart(part *gmail.MessagePart) string {
	if part.Body == nil {
		return ""
	}
	text, _ := mailbody.DecodeCharset(part.Body.Data, partCharset(part))
	return text
}

func partCharset(part *gmail.MessagePart) string {
	for _, h := range part.Headers {
		if !strings.EqualFold(h.Name, "Content-Type") {
			continue
		}
		if _, params, err := mime.ParseMediaType(h.Value); err == nil {
			return params["charset"]
		}
	}
	return ""
}
