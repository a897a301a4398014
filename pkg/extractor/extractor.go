// Package extractor turns bank notification emails into transactions.
//
// Extraction is a pure function of the email: an Extractor holds no mutable
// state and may be shared by any number of goroutines.
package extractor

import (
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/ArionMiles/finanzas/pkg/api"
)

// ExcerptLength is the number of characters of the parsed text kept on a transaction.
const ExcerptLength = 500

// idNamespace scopes transaction IDs derived from source message IDs.
var idNamespace = uuid.MustParse("6f1c2a7e-3b0d-5e1a-9c4f-8d2b7a6e1f30")

// Extractor routes emails to a bank grammar and builds transactions.
type Extractor struct {
	router   *Router
	grammars map[api.Bank]Grammar
}

// New creates an extractor for the given sender table.
func New(senders SenderTable) *Extractor {
	return &Extractor{
		router: NewRouter(senders),
		grammars: map[api.Bank]Grammar{
			api.BankBancolombia: Bancolombia(),
			api.BankNubank:      Nubank(),
		},
	}
}

// Default creates an extractor for DefaultSenders.
func Default() *Extractor {
	return New(DefaultSenders())
}

// Extract parses one email. It returns ErrUnrecognizedSender,
// ErrNoPatternMatch or ErrInvalidAmount (possibly wrapped) when the email
// holds no transaction.
func (e *Extractor) Extract(email api.RawEmail) (*api.Transaction, error) {
	bank, ok := e.router.Route(email.From)
	if !ok {
		return nil, ErrUnrecognizedSender
	}
	grammar, ok := e.grammars[bank]
	if !ok {
		return nil, ErrUnrecognizedSender
	}

	text := email.Text()
	m, err := grammar.Match(text)
	if err != nil {
		return nil, err
	}

	return &api.Transaction{
		ID:         transactionID(email),
		Amount:     m.Amount,
		Currency:   api.CurrencyCOP,
		Merchant:   m.Merchant,
		Bank:       bank,
		Type:       m.Type,
		OccurredAt: occurredAt(email),
		SourceID:   email.ID,
		RawExcerpt: excerpt(text, ExcerptLength),
	}, nil
}

func transactionID(email api.RawEmail) string {
	key := email.ID
	if key == "" {
		key = email.From + "\x00" + email.Date + "\x00" + email.Text()
	}
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// occurredAt reads the Date header, falling back to the provider receive time.
func occurredAt(email api.RawEmail) time.Time {
	if t, err := mail.ParseDate(email.Date); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, email.Date); err == nil {
		return t.UTC()
	}
	return email.ReceivedAt.UTC()
}

func excerpt(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
