package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	cartsvc "github.com/angelmondragon/storefront-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const idempotencyHeader = "Idempotency-Key"

type checkoutRequest struct {
	Shipping      checkoutsvc.ShippingDetails `json:"shipping" validate:"-"`
	PaymentMethod string                      `json:"paymentMethod" validate:"required"`
	SourceID      string                      `json:"sourceId,omitempty" validate:"omitempty,max=255"`
}

type quoteResponse struct {
	Lines       []cartLineResponse           `json:"lines"`
	Unavailable []int64                      `json:"unavailableLineIds,omitempty"`
	CartCount   int                          `json:"cartCount"`
	Totals      checkoutsvc.Totals           `json:"totals"`
	Shipping    *checkoutsvc.ShippingDetails `json:"shipping,omitempty"`
}

type placedResponse struct {
	OrderID         uuid.UUID `json:"orderId"`
	Status          string    `json:"status"`
	Total           int64     `json:"total"`
	ConfirmationURL string    `json:"confirmationUrl"`
}

type redirectResponse struct {
	RedirectURL string `json:"redirectUrl"`
	Token       string `json:"token"`
}

// CheckoutQuote renders the checkout page model for the caller's cart.
func CheckoutQuote(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		quote, err := svc.Quote(r.Context(), middleware.OwnerFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newQuoteResponse(quote))
	}
}

// CheckoutSubmit places the order for synchronous methods (201) or returns the gateway
// redirect for external ones (200).
func CheckoutSubmit(svc payments.Service, quotes checkoutsvc.Service, cartCfg config.CartTokenConfig, checkoutCfg config.CheckoutConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || quotes == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		owner := middleware.OwnerFromContext(r.Context())
		result, err := svc.Checkout(r.Context(), payments.CheckoutInput{
			Owner:          owner,
			Shipping:       payload.Shipping,
			Method:         enums.PaymentMethod(strings.ToLower(strings.TrimSpace(payload.PaymentMethod))),
			SourceID:       validators.SanitizeString(payload.SourceID, 255),
			IdempotencyKey: r.Header.Get(idempotencyHeader),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, withTotals(r.Context(), quotes, owner, err))
			return
		}

		if result.RedirectURL != "" {
			responses.WriteSuccess(w, redirectResponse{RedirectURL: result.RedirectURL, Token: result.Token})
			return
		}
		if result.Cart != nil {
			middleware.IssueCartToken(w, cartCfg, result.Cart.Token)
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, placedResponse{
			OrderID:         result.Order.ID,
			Status:          result.Order.Status.String(),
			Total:           result.Order.Total,
			ConfirmationURL: checkoutCfg.ConfirmationURL(result.Order.ID.String()),
		})
	}
}

// withTotals attaches the recomputed totals to a validation failure so the form can
// re-render without a second request.
func withTotals(ctx context.Context, quotes checkoutsvc.Service, owner cartsvc.Owner, err error) error {
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		return err
	}
	quote, quoteErr := quotes.Quote(ctx, owner)
	if quoteErr != nil {
		return err
	}
	typed := pkgerrors.As(err)
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, typed.Message()).WithDetails(map[string]any{
		"fields": typed.Details(),
		"totals": quote.Totals,
	})
}

func newQuoteResponse(quote *checkoutsvc.Quote) quoteResponse {
	out := quoteResponse{
		Lines:     make([]cartLineResponse, 0, len(quote.Lines)),
		CartCount: quote.Count,
		Totals:    quote.Totals,
		Shipping:  quote.Prefill,
	}
	for _, line := range quote.Lines {
		out.Lines = append(out.Lines, newCartLineResponse(line))
	}
	for _, line := range quote.Unavailable {
		out.Unavailable = append(out.Unavailable, line.ID)
	}
	return out
}
