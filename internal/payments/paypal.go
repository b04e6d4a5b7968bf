package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/paypal"
)

type paypalAPI interface {
	CreateOrder(ctx context.Context, params paypal.CreateOrderParams) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID, requestID string) (*paypal.Order, error)
	GetOrder(ctx context.Context, orderID string) (*paypal.Order, error)
}

// PayPalGateway is the redirect-capture integration. The PayPal order id doubles as
// the callback token.
type PayPalGateway struct {
	api     paypalAPI
	metrics gatewayObserver
}

func NewPayPalGateway(api paypalAPI, metrics gatewayObserver) (*PayPalGateway, error) {
	if api == nil {
		return nil, fmt.Errorf("paypal client required")
	}
	return &PayPalGateway{api: api, metrics: metrics}, nil
}

func (g *PayPalGateway) Method() enums.PaymentMethod {
	return enums.PaymentMethodPayPal
}

// Authorize creates a CAPTURE order for the settlement amount and returns its approval link.
func (g *PayPalGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	if req.SettlementAmount == "" || req.SettlementCurrency == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement amount required")
	}
	started := time.Now()
	order, err := g.api.CreateOrder(ctx, paypal.CreateOrderParams{
		RequestID:   req.RequestID,
		ReferenceID: req.RequestID,
		Description: "Storefront order",
		Currency:    req.SettlementCurrency,
		Value:       req.SettlementAmount,
		ReturnURL:   req.ReturnURL,
		CancelURL:   req.CancelURL,
	})
	observe(g.metrics, g.Method(), "create_order", started)
	if err != nil {
		return nil, err
	}
	return &Authorization{
		Status:      enums.PaymentStatusPending,
		RedirectURL: order.ApprovalURL(),
		Token:       order.ID,
		RemoteID:    order.ID,
	}, nil
}

// Capture settles an approved order. A replayed capture re-reads the order instead of failing.
func (g *PayPalGateway) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	started := time.Now()
	order, err := g.api.CaptureOrder(ctx, req.RemoteID, req.RequestID)
	observe(g.metrics, g.Method(), "capture_order", started)
	if paypal.IsIssue(err, paypal.IssueOrderAlreadyCaptured) {
		started = time.Now()
		order, err = g.api.GetOrder(ctx, req.RemoteID)
		observe(g.metrics, g.Method(), "get_order", started)
	}
	if err != nil {
		return nil, err
	}

	captureID, captureStatus := order.CaptureID()
	result := &CaptureResult{
		Status:           paypalStatus(order, captureStatus),
		GatewayReference: captureID,
		CapturedAt:       time.Now().UTC(),
	}
	if amount := capturedAmount(order); amount != nil {
		result.SettlementCurrency = amount.CurrencyCode
		result.SettlementAmount = amount.Value
	}
	return result, nil
}

func paypalStatus(order *paypal.Order, captureStatus string) enums.PaymentStatus {
	switch {
	case order.Captured():
		return enums.PaymentStatusCompleted
	case captureStatus == paypal.CaptureStatusDeclined:
		return enums.PaymentStatusDeclined
	case captureStatus == paypal.CaptureStatusPending:
		return enums.PaymentStatusPending
	default:
		return enums.PaymentStatusFailed
	}
}

func capturedAmount(order *paypal.Order) *paypal.Amount {
	for _, unit := range order.PurchaseUnits {
		if unit.Payments == nil {
			continue
		}
		for _, capture := range unit.Payments.Captures {
			if capture.Amount != nil {
				return capture.Amount
			}
		}
	}
	return nil
}
