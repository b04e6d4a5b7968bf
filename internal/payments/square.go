package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/square"
)

type squareAPI interface {
	CreatePayment(ctx context.Context, charge square.Charge) (*sq.Payment, error)
}

// SquareGateway charges a Web Payments SDK card token directly.
type SquareGateway struct {
	api     squareAPI
	metrics gatewayObserver
}

func NewSquareGateway(api squareAPI, metrics gatewayObserver) (*SquareGateway, error) {
	if api == nil {
		return nil, fmt.Errorf("square client required")
	}
	return &SquareGateway{api: api, metrics: metrics}, nil
}

func (g *SquareGateway) Method() enums.PaymentMethod {
	return enums.PaymentMethodSquare
}

// Authorize charges the settlement amount with autocomplete. The request id is the
// Square idempotency key, so a retried submission never charges twice.
func (g *SquareGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	if strings.TrimSpace(req.SourceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card details are required").
			WithDetails(map[string]string{"sourceId": "is required"})
	}
	value, err := money.ParseSettlement(req.SettlementAmount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "invalid settlement amount")
	}
	charge := square.Charge{
		Amount:         value,
		Currency:       req.SettlementCurrency,
		SourceID:       req.SourceID,
		IdempotencyKey: req.RequestID,
		Note:           "Storefront order",
		BuyerEmail:     req.BuyerEmail,
	}
	if req.OrderID != uuid.Nil {
		charge.OrderReference = req.OrderID.String()
	}

	started := time.Now()
	payment, err := g.api.CreatePayment(ctx, charge)
	observe(g.metrics, g.Method(), "create_payment", started)
	if err != nil {
		return nil, err
	}

	status := enums.PaymentStatusDeclined
	if square.PaymentSucceeded(deref(payment.GetStatus())) {
		status = enums.PaymentStatusCompleted
	}
	return &Authorization{
		Status:           status,
		GatewayReference: deref(payment.GetID()),
		RemoteID:         deref(payment.GetID()),
	}, nil
}

func (g *SquareGateway) Capture(context.Context, CaptureRequest) (*CaptureResult, error) {
	return nil, errCaptureUnsupported(g.Method())
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
