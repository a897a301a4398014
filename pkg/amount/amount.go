// Package amount parses money amounts written with Colombian or American
// digit grouping.
//
// Colombian notifications write 51.850,00 (dot groups thousands, comma marks
// decimals) while others write 9,652,805.00. Parse guesses the convention from
// the string alone. A single separator followed by anything other than exactly
// two digits is always read as a thousands separator, so "1.500" is 1500 and
// never 1.5.
package amount

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalid is returned for strings that do not form a number.
// Callers must treat it as "no amount", never as zero.
var ErrInvalid = errors.New("invalid amount")

// Parse converts s to a decimal, detecting which of '.' and ',' is the
// decimal separator.
func Parse(s string) (decimal.Decimal, error) {
	if !wellFormed(s) {
		return decimal.Zero, ErrInvalid
	}

	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	var normalized string
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(s, ".") > strings.LastIndex(s, ",") {
			normalized = strings.ReplaceAll(s, ",", "")
		} else {
			normalized = strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
		}
	case commas > 0:
		normalized = single(s, ",", commas)
	case dots > 0:
		normalized = single(s, ".", dots)
	default:
		normalized = s
	}

	return fromString(normalized)
}

// ParseColombian converts s assuming '.' groups thousands and ',' marks
// decimals, without any detection.
func ParseColombian(s string) (decimal.Decimal, error) {
	if !wellFormed(s) {
		return decimal.Zero, ErrInvalid
	}
	return fromString(strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1))
}

// single normalizes a string that uses only one kind of separator.
func single(s, sep string, count int) string {
	if count > 1 {
		return strings.ReplaceAll(s, sep, "")
	}
	_, frac, _ := strings.Cut(s, sep)
	if len(frac) == 2 {
		return strings.Replace(s, sep, ".", 1)
	}
	return strings.ReplaceAll(s, sep, "")
}

func fromString(s string) (decimal.Decimal, error) {
	if strings.Count(s, ".") > 1 || strings.Trim(s, ".") == "" {
		return decimal.Zero, ErrInvalid
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalid
	}
	return d, nil
}

// wellFormed reports whether s holds at least one digit and nothing but
// digits and separators.
func wellFormed(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' || r == ',':
		default:
			return false
		}
	}
	return digits > 0
}
