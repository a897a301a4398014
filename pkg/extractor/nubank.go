package extractor

import (
	"regexp"

	"github.com/ArionMiles/finanzas/pkg/amount"
	"github.com/ArionMiles/finanzas/pkg/api"
)

var (
	// "Compra aprobada por $50.000 en EXITO"
	nuPurchase = regexp.MustCompile(`(?i)(?:compra|pago|retiro)[^$]*` + amountGroup)
	nuAt       = regexp.MustCompile(`(?i)\b(?:en|a)\s+(\p{L}[\p{L}\d\s*]+?)(?:\s+el\s|\s+por\s|\.|\n|$)`)
)

// Nubank returns the grammar for Nubank notifications. Nubank always writes
// amounts in Colombian format, so no separator detection is done.
func Nubank() Grammar {
	return Grammar{
		Bank: api.BankNubank,
		Rules: []Rule{
			{
				Name:     "purchase",
				Type:     api.TypeExpense,
				Trigger:  nuPurchase,
				Merchant: []*regexp.Regexp{nuAt},
				Fallback: MerchantUnknown,
				Parse:    amount.ParseColombian,
			},
		},
	}
}
