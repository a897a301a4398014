package extractor

import (
	"sort"
	"strings"

	"github.com/ArionMiles/finanzas/pkg/api"
)

// SenderTable lists, per bank, the sender addresses or domains whose mail
// that bank's grammar understands.
type SenderTable map[api.Bank][]string

// DefaultSenders returns the known notification senders of each supported bank.
func DefaultSenders() SenderTable {
	return SenderTable{
		api.BankBancolombia: {
			"alertasynotificaciones@an.notificacionesbancolombia.com",
			"alertasynotificaciones@bancolombia.com.co",
			"notificaciones@bancolombia.com.co",
			"notificacionesbancolombia.com",
		},
		api.BankNubank: {
			"todomundopuede@nu.com.co",
			"nu@nu.com.co",
			"alertas@nu.com.co",
		},
	}
}

// Addresses returns every sender in the table, banks in name order.
func (t SenderTable) Addresses() []string {
	var out []string
	for _, bank := range t.banks() {
		out = append(out, t[bank]...)
	}
	return out
}

func (t SenderTable) banks() []api.Bank {
	banks := make([]api.Bank, 0, len(t))
	for bank := range t {
		banks = append(banks, bank)
	}
	sort.Slice(banks, func(i, j int) bool { return banks[i] < banks[j] })
	return banks
}

// Router picks the bank whose grammar applies to an email.
type Router struct {
	entries []routeEntry
}

type routeEntry struct {
	bank    api.Bank
	pattern string
}

// NewRouter creates a router over the given table. Matching is a
// case-insensitive substring test, banks checked in name order.
func NewRouter(table SenderTable) *Router {
	r := &Router{}
	for _, bank := range table.banks() {
		for _, sender := range table[bank] {
			sender = strings.ToLower(strings.TrimSpace(sender))
			if sender == "" {
				continue
			}
			r.entries = append(r.entries, routeEntry{bank: bank, pattern: sender})
		}
	}
	return r
}

// Route returns the bank for a From header value.
func (r *Router) Route(from string) (api.Bank, bool) {
	from = strings.ToLower(from)
	for _, e := range r.entries {
		if strings.Contains(from, e.pattern) {
			return e.bank, true
		}
	}
	return "", false
}
