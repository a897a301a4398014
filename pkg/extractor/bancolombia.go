package extractor

import (
	"regexp"
	"strings"

	"github.com/ArionMiles/finanzas/pkg/api"
)

var (
	// "Transferiste $92,900.00 por Botón Bancolombia a EMPRESA DE TELECOMUNICACIONES"
	// "NICOLAS, transferiste $520,000.00 a la llave @nico desde tu cuenta *1234 a Juana Uribe Henao"
	bcTransfer       = regexp.MustCompile(`(?i)transferiste\s*` + amountGroup)
	bcTransferButton = regexp.MustCompile(`(?i)por\s+bot[oó]n\s+bancolombia\s+a\s+(\p{L}[\p{L}\s]+?)` + nameEnd)
	bcTransferKey    = regexp.MustCompile(`(?i)\ba\s+la\s+llave\s+\S+.*?\ba\s+(\p{L}[\p{L}\s]+?)` + nameEnd)
	bcTransferTo     = regexp.MustCompile(`(?i)\ba\s+(\p{L}[\p{L}\s]+?)` + nameEnd)

	// "Recibiste un pago de Nomina de BAVARIA & CIA S por $9,652,805.00"
	// "Recibiste una transferencia por $3,000,000 de VERONICA JIMENO"
	bcIncome       = regexp.MustCompile(`(?i)recibiste|te\s+transfirieron|te\s+enviaron|te\s+consignaron`)
	bcIncomeAmount = regexp.MustCompile(amountGroup)
	bcIncomeFrom   = regexp.MustCompile(`(?i)\bde\s+(?:parte\s+de\s+|n[oó]mina\s+de\s+)?(\p{L}[\p{L}\d\s&.\-]+?)(?:\s+en\s+tu|\s+por\s+\$|\s+el\s+\d|,|\n|$)`)

	// "Compraste $51.850,00 en RAPPI COLOMBIA*DL con tu T.Deb *0970"
	bcExpense   = regexp.MustCompile(`(?i)(?:compraste|compra\s+por|pagaste|pago\s+por|retiraste|retiro\s+por)[^$]*` + amountGroup)
	bcExpenseAt = regexp.MustCompile(`(?i)\s+en\s+([\p{L}\d][\p{L}\d\s*\-.]+?)` + nameEnd)

	// cardMarker is the processor suffix appended to merchant names, as in "RAPPI COLOMBIA*DL".
	cardMarker = regexp.MustCompile(`\s*\*+[\p{L}\d]{0,4}$`)
)

// Bancolombia returns the grammar for Bancolombia notifications. Outgoing
// transfers are checked before income, and income before purchases, since
// the phrasing of one often loosely matches another.
func Bancolombia() Grammar {
	return Grammar{
		Bank: api.BankBancolombia,
		Rules: []Rule{
			{
				Name:     "transfer",
				Type:     api.TypeTransfer,
				Trigger:  bcTransfer,
				Merchant: []*regexp.Regexp{bcTransferButton, bcTransferKey, bcTransferTo},
				Fallback: MerchantTransfer,
				Parse:    parseLocale,
			},
			{
				Name:     "income",
				Type:     api.TypeIncome,
				Trigger:  bcIncome,
				Amount:   bcIncomeAmount,
				Merchant: []*regexp.Regexp{bcIncomeFrom},
				Fallback: MerchantIncome,
				Parse:    parseLocale,
			},
			{
				Name:     "expense",
				Type:     api.TypeExpense,
				Trigger:  bcExpense,
				Merchant: []*regexp.Regexp{bcExpenseAt},
				Fallback: MerchantUnknown,
				Clean:    trimCardMarker,
				Parse:    parseLocale,
			},
		},
	}
}

func trimCardMarker(name string) string {
	return strings.TrimSpace(cardMarker.ReplaceAllString(name, ""))
}
