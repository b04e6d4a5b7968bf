package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	cartsvc "github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type addToCartRequest struct {
	ProductID uuid.UUID  `json:"productId" validate:"required"`
	VariantID *uuid.UUID `json:"variantId,omitempty"`
	Quantity  int        `json:"quantity" validate:"required,min=1"`
}

type updateQuantityRequest struct {
	ProductID uuid.UUID  `json:"productId" validate:"required"`
	VariantID *uuid.UUID `json:"variantId,omitempty"`
	Quantity  int        `json:"quantity" validate:"required,min=1"`
}

type removeItemRequest struct {
	ProductID uuid.UUID  `json:"productId" validate:"required"`
	VariantID *uuid.UUID `json:"variantId,omitempty"`
}

type updateVariantRequest struct {
	LineID    int64     `json:"lineId" validate:"required,min=1"`
	ProductID uuid.UUID `json:"productId" validate:"required"`
	VariantID uuid.UUID `json:"variantId" validate:"required"`
}

type cartCountResponse struct {
	Success   bool `json:"success"`
	CartCount int  `json:"cartCount"`
}

type cartSubtotalResponse struct {
	Success   bool  `json:"success"`
	Subtotal  int64 `json:"subtotal"`
	CartCount int   `json:"cartCount"`
}

type variantResponse struct {
	Success bool   `json:"success"`
	Color   string `json:"color"`
	Size    string `json:"size"`
	Price   int64  `json:"price"`
}

type cartLineResponse struct {
	LineID    int64      `json:"lineId"`
	ProductID uuid.UUID  `json:"productId"`
	VariantID *uuid.UUID `json:"variantId,omitempty"`
	Name      string     `json:"name"`
	Size      string     `json:"size,omitempty"`
	Color     string     `json:"color,omitempty"`
	UnitPrice int64      `json:"unitPrice"`
	Quantity  int        `json:"quantity"`
	LineTotal int64      `json:"lineTotal"`
}

type cartResponse struct {
	Lines       []cartLineResponse `json:"lines"`
	Unavailable []int64            `json:"unavailableLineIds,omitempty"`
	Subtotal    int64              `json:"subtotal"`
	CartCount   int                `json:"cartCount"`
}

// CartAdd merges a product selection into the caller's cart.
func CartAdd(svc cartsvc.Service, cfg config.CartTokenConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload addToCartRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		current, err := svc.Add(r.Context(), middleware.OwnerFromContext(r.Context()), payload.ProductID, payload.VariantID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		middleware.IssueCartToken(w, cfg, current.Token)
		responses.WriteSuccess(w, cartCountResponse{Success: true, CartCount: current.Count()})
	}
}

// CartUpdateQuantity replaces the quantity of an existing line.
func CartUpdateQuantity(svc cartsvc.Service, cfg config.CartTokenConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload updateQuantityRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		owner := middleware.OwnerFromContext(r.Context())
		current, err := svc.SetQuantity(r.Context(), owner, cartsvc.ByKey(payload.ProductID, payload.VariantID), payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeSubtotal(w, r, svc, cfg, logg, current)
	}
}

// CartRemove drops a line from the cart.
func CartRemove(svc cartsvc.Service, cfg config.CartTokenConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload removeItemRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		owner := middleware.OwnerFromContext(r.Context())
		current, err := svc.Remove(r.Context(), owner, cartsvc.ByKey(payload.ProductID, payload.VariantID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeSubtotal(w, r, svc, cfg, logg, current)
	}
}

// CartUpdateVariant moves a line onto another variant of the same product.
func CartUpdateVariant(svc cartsvc.Service, cfg config.CartTokenConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload updateVariantRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		owner := middleware.OwnerFromContext(r.Context())
		current, resolved, err := svc.ReassignVariant(r.Context(), owner, payload.LineID, payload.ProductID, payload.VariantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		middleware.IssueCartToken(w, cfg, current.Token)
		responses.WriteSuccess(w, variantResponse{
			Success: true,
			Color:   resolved.Color,
			Size:    resolved.Size,
			Price:   resolved.UnitPrice,
		})
	}
}

// CartCount returns the total quantity in the cart as a bare integer.
func CartCount(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		current, err := svc.List(r.Context(), middleware.OwnerFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, current.Count())
	}
}

// CartFetch returns the cart with every line re-priced from the catalog.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		current, err := svc.List(r.Context(), middleware.OwnerFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		priced, err := svc.Price(r.Context(), current)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(priced))
	}
}

func writeSubtotal(w http.ResponseWriter, r *http.Request, svc cartsvc.Service, cfg config.CartTokenConfig, logg *logger.Logger, current *cartsvc.Cart) {
	priced, err := svc.Price(r.Context(), current)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	middleware.IssueCartToken(w, cfg, current.Token)
	responses.WriteSuccess(w, cartSubtotalResponse{
		Success:   true,
		Subtotal:  priced.Subtotal,
		CartCount: current.Count(),
	})
}

func newCartResponse(priced *cartsvc.Priced) cartResponse {
	out := cartResponse{
		Lines:     make([]cartLineResponse, 0, len(priced.Lines)),
		Subtotal:  priced.Subtotal,
		CartCount: priced.Count,
	}
	for _, line := range priced.Lines {
		out.Lines = append(out.Lines, newCartLineResponse(line))
	}
	for _, line := range priced.Unavailable {
		out.Unavailable = append(out.Unavailable, line.ID)
		out.CartCount += line.Quantity
	}
	return out
}

func newCartLineResponse(line cartsvc.PricedLine) cartLineResponse {
	return cartLineResponse{
		LineID:    line.LineID,
		ProductID: line.ProductID,
		VariantID: line.VariantID,
		Name:      line.Name,
		Size:      line.Size,
		Color:     line.Color,
		UnitPrice: line.UnitPrice,
		Quantity:  line.Quantity,
		LineTotal: line.LineTotal,
	}
}
