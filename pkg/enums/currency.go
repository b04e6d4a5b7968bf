package enums

// Currency is an ISO 4217 code the storefront prices or settles in.
type Currency string

const (
	CurrencyVND Currency = "VND"
	CurrencyUSD Currency = "USD"
)

var currencies = newClosedSet("currency", CurrencyVND, CurrencyUSD)

// ParseCurrency validates configured base and settlement currencies.
func ParseCurrency(value string) (Currency, error) {
	return currencies.parse(value)
}
