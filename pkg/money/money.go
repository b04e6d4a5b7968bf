// Package money converts base-currency integer amounts into settlement currency values.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// settlementPlaces is the precision gateways accept for the settlement currency.
const settlementPlaces = 2

// Rate is a fixed base→settlement conversion rate.
type Rate struct {
	value decimal.Decimal
}

// ParseRate parses a positive decimal conversion rate such as "0.00004".
func ParseRate(raw string) (Rate, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Rate{}, fmt.Errorf("conversion rate is required")
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Rate{}, fmt.Errorf("invalid conversion rate %q: %w", raw, err)
	}
	if !value.IsPositive() {
		return Rate{}, fmt.Errorf("conversion rate must be positive, got %q", raw)
	}
	return Rate{value: value}, nil
}

// MustParseRate is ParseRate for constants and tests.
func MustParseRate(raw string) Rate {
	rate, err := ParseRate(raw)
	if err != nil {
		panic(err)
	}
	return rate
}

func (r Rate) String() string {
	return r.value.String()
}

// Convert applies the rate to a base amount, rounding half away from zero to two places.
func (r Rate) Convert(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Mul(r.value).Round(settlementPlaces)
}

// FormatSettlement renders a settlement value with exactly two decimals, e.g. "20.00".
func FormatSettlement(value decimal.Decimal) string {
	return value.StringFixed(settlementPlaces)
}

// ParseSettlement parses a value previously rendered by FormatSettlement.
func ParseSettlement(raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid settlement amount %q: %w", raw, err)
	}
	return value, nil
}
