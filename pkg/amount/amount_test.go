package amount

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"51.850,00", "51850"},
		{"9,652,805.00", "9652805"},
		{"1,000", "1000"},
		{"1,00", "1"},
		{"1,50", "1.5"},
		{"50000", "50000"},
		{"3,000,000", "3000000"},
		{"1.234.567", "1234567"},
		{"1.500", "1500"},
		{"1000.00", "1000"},
		{"92,900.00", "92900"},
		{"520,000.00", "520000"},
		{"1.234.567,89", "1234567.89"},
		{"1,234,567.89", "1234567.89"},
		{"12,5", "125"},
		{"1000,", "1000"},
		{"0", "0"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := Parse(tc.input)
			if err != nil {
				t.Fatalf("Parse(%q): unexpected error %v", tc.input, err)
			}
			want := decimal.RequireFromString(tc.want)
			if !got.Equal(want) {
				t.Errorf("Parse(%q): got %s, want %s", tc.input, got, want)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	inputs := []string{
		"",
		".",
		",",
		".,",
		"abc",
		"12a",
		"-5",
		"1,2.3,4",
		"$100",
		"1 000",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			got, err := Parse(input)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Parse(%q): got (%s, %v), want ErrInvalid", input, got, err)
			}
		})
	}
}

func TestParseColombian(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"50.000", "50000"},
		{"1.250.000", "1250000"},
		{"50.000,50", "50000.5"},
		{"1.50", "150"},
		{"75000", "75000"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseColombian(tc.input)
			if err != nil {
				t.Fatalf("ParseColombian(%q): unexpected error %v", tc.input, err)
			}
			if want := decimal.RequireFromString(tc.want); !got.Equal(want) {
				t.Errorf("ParseColombian(%q): got %s, want %s", tc.input, got, want)
			}
		})
	}

	if _, err := ParseColombian("1,2,3"); !errors.Is(err, ErrInvalid) {
		t.Errorf("ParseColombian(%q): got %v, want ErrInvalid", "1,2,3", err)
	}
}
