// Package api defines the core interfaces and data structures for finanzas.
package api

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Bank identifies the institution that issued a notification.
type Bank string

// Known banks.
const (
	BankBancolombia Bank = "bancolombia"
	BankNubank      Bank = "nubank"
	BankOther       Bank = "other"
)

// Type classifies the direction of a transaction.
type Type string

// Transaction types.
const (
	TypeExpense  Type = "expense"
	TypeIncome   Type = "income"
	TypeTransfer Type = "transfer"
)

// CurrencyCOP is the currency of every amount found in supported notifications.
const CurrencyCOP = "COP"

// RawEmail is a bank notification as fetched from a mail provider.
type RawEmail struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	// Date is the Date header as sent (RFC 5322 or ISO 8601).
	Date    string `json:"date"`
	Snippet string `json:"snippet"`
	// Body is the decoded text of the message, if any.
	Body string `json:"body,omitempty"`
	// ReceivedAt is the provider's receive time. Only used when Date is unparseable.
	ReceivedAt time.Time `json:"received_at,omitzero"`
}

// Text returns the text grammars should match against: the body, or the
// snippet when no body was decoded.
func (e RawEmail) Text() string {
	if e.Body != "" {
		return e.Body
	}
	return e.Snippet
}

// Transaction is a financial event derived from one RawEmail.
type Transaction struct {
	// ID is derived from SourceID, so extracting the same email twice yields the same ID.
	ID         string          `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Merchant   string          `json:"merchant"`
	Bank       Bank            `json:"bank"`
	Type       Type            `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	// SourceID is the originating RawEmail's ID. Writers acknowledge it after a successful write.
	SourceID   string `json:"source_id"`
	RawExcerpt string `json:"raw_excerpt"`
	// Category is filled in by the categorizer, never by the extractor.
	Category string `json:"category,omitempty"`
}

// Reader reads transactions from a source and sends them to the provided channel.
// Implementations should close the channel when done or on error.
// The ackChan is used to receive acknowledgments of successfully written transactions.
type Reader interface {
	Read(ctx context.Context, out chan<- *Transaction, ackChan <-chan string) error
}

// Writer consumes transactions from a channel and writes them to a destination.
// Successfully written transaction source IDs are sent to the ackChan.
type Writer interface {
	Write(ctx context.Context, in <-chan *Transaction, ackChan chan<- string) error
}

// Labels maps merchant names to a category, overriding the built-in rules.
type Labels map[string]string

// LabelLookup returns the category for a merchant.
// Returns an empty string if the merchant is not found.
func (l Labels) LabelLookup(merchant string) string {
	return l[merchant]
}
