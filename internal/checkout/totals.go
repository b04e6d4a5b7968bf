package checkout

import (
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/config"
)

// ShippingTiers configures the three shipping bands. Lower bounds are inclusive.
type ShippingTiers struct {
	ReducedThreshold int64
	FreeThreshold    int64
	StandardFee      int64
	ReducedFee       int64
}

// TiersFromConfig maps checkout config onto tiers.
func TiersFromConfig(cfg config.CheckoutConfig) ShippingTiers {
	return ShippingTiers{
		ReducedThreshold: cfg.ReducedShippingThreshold,
		FreeThreshold:    cfg.FreeShippingThreshold,
		StandardFee:      cfg.StandardShippingFee,
		ReducedFee:       cfg.ReducedShippingFee,
	}
}

// FeeFor returns the shipping fee for a subtotal.
func (t ShippingTiers) FeeFor(subtotal int64) int64 {
	switch {
	case subtotal >= t.FreeThreshold:
		return 0
	case subtotal >= t.ReducedThreshold:
		return t.ReducedFee
	default:
		return t.StandardFee
	}
}

// Totals is the server-computed charge for a cart.
type Totals struct {
	Subtotal    int64 `json:"subtotal"`
	ShippingFee int64 `json:"shippingFee"`
	Tax         int64 `json:"tax"`
	Total       int64 `json:"total"`
}

// ComputeTotals derives totals from resolved lines. Tax is zero-rated.
func ComputeTotals(lines []cart.PricedLine, tiers ShippingTiers) Totals {
	var subtotal int64
	for _, line := range lines {
		subtotal += line.UnitPrice * int64(line.Quantity)
	}
	shipping := tiers.FeeFor(subtotal)
	const tax = 0
	return Totals{
		Subtotal:    subtotal,
		ShippingFee: shipping,
		Tax:         tax,
		Total:       subtotal + shipping + tax,
	}
}
