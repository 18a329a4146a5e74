// Package money converts provider decimal amounts to integer minor units.
package money

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var zeroDecimal = map[string]bool{
	"JPY": true,
	"KRW": true,
	"HUF": true,
	"TWD": true,
}

// plain digits with an optional fraction; no sign, exponent or radix prefix
var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// Exponent returns the number of minor-unit digits for currency.
func Exponent(currency string) int {
	if zeroDecimal[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// ParseMinor parses a decimal string such as "9.99" into minor units.
// Values with more precision than the currency allows are rejected.
func ParseMinor(raw, currency string) (int64, error) {
	value := strings.TrimSpace(raw)
	if !decimalPattern.MatchString(value) {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}

	minor := amount.Shift(int32(Exponent(currency)))
	if !minor.IsInteger() {
		return 0, fmt.Errorf("amount %q has too many decimal places for %s", raw, currency)
	}
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %q out of range", raw)
	}
	return minor.IntPart(), nil
}

// FormatMinor renders minor units in the provider decimal form ("9.99").
func FormatMinor(minor int64, currency string) string {
	exp := int32(Exponent(currency))
	return decimal.New(minor, -exp).StringFixed(exp)
}
