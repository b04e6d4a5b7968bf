package orders

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// maxCursorLen bounds the opaque keyset cursor accepted from the query string.
const maxCursorLen = 256

type call func(r *http.Request, svc internalorders.Service) (any, error)

// serve wraps an orders call in the success or error envelope.
func serve(svc internalorders.Service, logg *logger.Logger, fn call) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		out, err := fn(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

// Detail returns the confirmation view of one order. Guests may read guest
// orders; a signed-in viewer only sees their own.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(svc, logg, func(r *http.Request, svc internalorders.Service) (any, error) {
		viewer, err := viewerID(r)
		if err != nil {
			return nil, err
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			return nil, err
		}
		return svc.Get(r.Context(), orderID, viewer)
	})
}

// List pages newest-first through the signed-in shopper's orders.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(svc, logg, func(r *http.Request, svc internalorders.Service) (any, error) {
		viewer, err := viewerID(r)
		if err != nil {
			return nil, err
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			return nil, err
		}
		return svc.List(r.Context(), viewer, pagination.Params{
			Limit:  limit,
			Cursor: validators.QueryString(r, "cursor", maxCursorLen),
		})
	})
}

// CancelOrder withdraws a pending order placed by the signed-in shopper.
func CancelOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(svc, logg, func(r *http.Request, svc internalorders.Service) (any, error) {
		viewer, err := viewerID(r)
		if err != nil {
			return nil, err
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			return nil, err
		}
		return svc.Cancel(r.Context(), orderID, viewer)
	})
}

func orderIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id").
			WithDetails(map[string]string{"orderId": "must be a uuid"})
	}
	return id, nil
}

// viewerID is uuid.Nil for guests.
func viewerID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return id, nil
}
