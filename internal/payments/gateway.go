// Package payments authorizes and settles order payments through cash on delivery,
// direct card charges and redirect-capture gateways.
package payments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Gateway is one payment method's integration.
type Gateway interface {
	Method() enums.PaymentMethod
	Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error)
	Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error)
}

// AuthorizeRequest carries the order amount in both currencies. OrderID is set for
// charges issued inside the order transaction and empty for redirect checkouts, which
// have no order yet.
type AuthorizeRequest struct {
	OrderID            uuid.UUID
	RequestID          string
	Amount             int64
	Currency           string
	SettlementCurrency string
	SettlementAmount   string
	SourceID           string
	BuyerEmail         string
	ReturnURL          string
	CancelURL          string
}

// Authorization is the gateway's answer to a checkout submission. Redirect gateways
// fill RedirectURL and Token; direct charges fill GatewayReference.
type Authorization struct {
	Status           enums.PaymentStatus
	RedirectURL      string
	Token            string
	RemoteID         string
	GatewayReference string
}

// CaptureRequest settles a previously authorized redirect checkout.
type CaptureRequest struct {
	OrderID   uuid.UUID
	RemoteID  string
	PayerID   string
	RequestID string
}

// CaptureResult is the settled state reported by the gateway.
type CaptureResult struct {
	Status             enums.PaymentStatus
	GatewayReference   string
	SettlementCurrency string
	SettlementAmount   string
	CapturedAt         time.Time
}

type gatewayObserver interface {
	ObserveGatewayCall(gateway, operation string, duration time.Duration)
}

func observe(obs gatewayObserver, method enums.PaymentMethod, op string, started time.Time) {
	if obs == nil {
		return
	}
	obs.ObserveGatewayCall(method.String(), op, time.Since(started))
}

func errCaptureUnsupported(method enums.PaymentMethod) error {
	return pkgerrors.New(pkgerrors.CodeValidation, method.String()+" payments are not captured")
}
