package square

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const defaultCurrency = "USD"

// wholeUnitCurrencies have no minor unit in the Payments API.
var wholeUnitCurrencies = map[string]bool{"VND": true, "JPY": true, "KRW": true}

// Charge is a single autocompleted card payment at the configured location.
type Charge struct {
	Amount         decimal.Decimal
	Currency       string
	SourceID       string
	IdempotencyKey string
	OrderReference string
	BuyerEmail     string
	Note           string
}

func (c Charge) currency() string {
	code := strings.ToUpper(strings.TrimSpace(c.Currency))
	if code == "" {
		return defaultCurrency
	}
	return code
}

// smallestUnit converts the amount into the integer the API expects: cents for USD,
// whole dong for VND.
func (c Charge) smallestUnit() int64 {
	if wholeUnitCurrencies[c.currency()] {
		return c.Amount.Round(0).IntPart()
	}
	return c.Amount.Round(2).Shift(2).IntPart()
}

func (c Charge) idempotencyKey() string {
	if key := strings.TrimSpace(c.IdempotencyKey); key != "" {
		return key
	}
	return "sf-" + uuid.Must(uuid.NewV7()).String()
}

func (c Charge) validate() error {
	details := map[string]string{}
	if strings.TrimSpace(c.SourceID) == "" {
		details["sourceId"] = "is required"
	}
	if c.smallestUnit() <= 0 {
		details["amount"] = "must be positive"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid square charge").WithDetails(details)
	}
	return nil
}

func (c Charge) request(locationID string) *sq.CreatePaymentRequest {
	amount := c.smallestUnit()
	currency := sq.Currency(c.currency())
	autocomplete := true
	req := &sq.CreatePaymentRequest{
		IdempotencyKey: c.idempotencyKey(),
		SourceID:       strings.TrimSpace(c.SourceID),
		LocationID:     &locationID,
		Autocomplete:   &autocomplete,
		AmountMoney:    &sq.Money{Amount: &amount, Currency: &currency},
	}
	req.ReferenceID = optional(c.OrderReference)
	req.BuyerEmailAddress = optional(c.BuyerEmail)
	req.Note = optional(c.Note)
	return req
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
