package extractor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/finanzas/pkg/amount"
	"github.com/ArionMiles/finanzas/pkg/api"
)

// Merchant labels used when no name can be extracted.
const (
	MerchantUnknown  = "Unknown"
	MerchantTransfer = "Transfer"
	MerchantIncome   = "Income"
)

// amountGroup captures an amount after a dollar sign. It ends on a digit so
// sentence punctuation after the number stays out of the group.
const amountGroup = `\$\s*(\d(?:[\d.,]*\d)?)`

// nameEnd marks where a captured name stops.
const nameEnd = `(?:\s+desde\s|\s+con\s|\s+el\s+\d|,|\.|\n|$)`

// Rule recognizes one kind of notification.
//
// A rule whose Trigger matches claims the email: if the amount is then
// missing or invalid the whole grammar reports no match instead of trying
// the next rule.
type Rule struct {
	Name string
	Type api.Type
	// Trigger decides whether the rule applies. When Amount is nil its first
	// group holds the amount.
	Trigger *regexp.Regexp
	// Amount, when set, locates the amount anywhere in the text.
	Amount *regexp.Regexp
	// Merchant patterns are tried in order; the first group of the first match wins.
	Merchant []*regexp.Regexp
	// Fallback is the merchant used when no pattern matches.
	Fallback string
	// Clean post-processes an extracted merchant. Optional.
	Clean func(string) string
	// Parse converts the amount text.
	Parse func(string) (decimal.Decimal, error)
}

// Match is the result of a successful rule.
type Match struct {
	Rule     string
	Type     api.Type
	Amount   decimal.Decimal
	Merchant string
}

// Grammar is the ordered rule table of one bank.
type Grammar struct {
	Bank  api.Bank
	Rules []Rule
}

// Match runs the rules in order against text.
func (g Grammar) Match(text string) (Match, error) {
	for _, rule := range g.Rules {
		m, claimed, err := rule.apply(text)
		if !claimed {
			continue
		}
		return m, err
	}
	return Match{}, ErrNoPatternMatch
}

func (r Rule) apply(text string) (Match, bool, error) {
	trigger := r.Trigger.FindStringSubmatch(text)
	if trigger == nil {
		return Match{}, false, nil
	}

	var raw string
	if r.Amount != nil {
		m := r.Amount.FindStringSubmatch(text)
		if m == nil {
			return Match{}, true, fmt.Errorf("%s: %w", r.Name, ErrNoPatternMatch)
		}
		raw = m[1]
	} else {
		raw = trigger[1]
	}

	value, err := r.Parse(raw)
	if err != nil || !value.IsPositive() {
		return Match{}, true, fmt.Errorf("%s: %q: %w", r.Name, raw, ErrInvalidAmount)
	}

	return Match{
		Rule:     r.Name,
		Type:     r.Type,
		Amount:   value,
		Merchant: r.merchant(text),
	}, true, nil
}

func (r Rule) merchant(text string) string {
	for _, re := range r.Merchant {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if r.Clean != nil {
			name = r.Clean(name)
		}
		if name != "" {
			return name
		}
	}
	return r.Fallback
}

// parseLocale is the default amount parser.
func parseLocale(s string) (decimal.Decimal, error) {
	return amount.Parse(s)
}
