package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const maxCallbackParamLen = 128

type initiatePaymentRequest struct {
	Shipping checkoutsvc.ShippingDetails `json:"shipping" validate:"-"`
}

// PaymentInitiate parks the cart with the gateway named in the path and sends the
// shopper to its approval page.
func PaymentInitiate(svc payments.Service, quotes checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || quotes == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		method := gatewayParam(r)
		if !method.IsRedirect() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "gateway does not use redirects").
				WithDetails(map[string]string{"gateway": "is not a redirect gateway"}))
			return
		}

		var payload initiatePaymentRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		owner := middleware.OwnerFromContext(r.Context())
		result, err := svc.Checkout(r.Context(), payments.CheckoutInput{
			Owner:          owner,
			Shipping:       payload.Shipping,
			Method:         method,
			IdempotencyKey: r.Header.Get(idempotencyHeader),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, withTotals(r.Context(), quotes, owner, err))
			return
		}
		responses.WriteRedirect(w, r, result.RedirectURL)
	}
}

// PaymentReturn captures an approved redirect payment. The shopper always lands on a
// page: the confirmation on success, otherwise checkout with a notice.
func PaymentReturn(svc payments.Service, cfg config.CheckoutConfig, tokens config.CartTokenConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteRedirect(w, r, cfg.CheckoutURL(payments.NoticeFailed))
			return
		}

		token := validators.QueryString(r, "token", maxCallbackParamLen)
		payerID := validators.QueryString(r, "PayerID", maxCallbackParamLen)

		outcome, err := svc.Capture(r.Context(), gatewayParam(r), token, payerID)
		if outcome != nil && outcome.OrderID != nil {
			// guests hold the cart in the token, so the cleared one replaces it
			if outcome.Cart != nil {
				middleware.IssueCartToken(w, tokens, outcome.Cart.Token)
			}
			responses.WriteRedirect(w, r, cfg.ConfirmationURL(outcome.OrderID.String()))
			return
		}

		notice := payments.NoticeFailed
		if outcome != nil && outcome.Notice != "" {
			notice = outcome.Notice
		}
		if err != nil && logg != nil {
			logCtx := logg.WithFields(r.Context(), map[string]any{
				"gateway":    chi.URLParam(r, "gateway"),
				"token":      token,
				"error":      err.Error(),
				"error_code": errorCode(err),
			})
			logg.Warn(logCtx, "payment return not captured")
		}
		responses.WriteRedirect(w, r, cfg.CheckoutURL(notice))
	}
}

// PaymentCancel records a cancelled approval and returns the shopper to checkout with
// the cart untouched.
func PaymentCancel(svc payments.Service, cfg config.CheckoutConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		notice := payments.NoticeCancelled
		if svc != nil {
			token := validators.QueryString(r, "token", maxCallbackParamLen)
			notice = svc.Cancel(r.Context(), gatewayParam(r), token)
		}
		responses.WriteRedirect(w, r, cfg.CheckoutURL(notice))
	}
}

func gatewayParam(r *http.Request) enums.PaymentMethod {
	return enums.PaymentMethod(strings.ToLower(strings.TrimSpace(chi.URLParam(r, "gateway"))))
}

func errorCode(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	return ""
}
