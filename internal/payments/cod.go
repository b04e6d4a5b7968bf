package payments

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// CashOnDelivery leaves the payment pending until the courier collects it.
type CashOnDelivery struct{}

func (CashOnDelivery) Method() enums.PaymentMethod {
	return enums.PaymentMethodCOD
}

func (CashOnDelivery) Authorize(context.Context, AuthorizeRequest) (*Authorization, error) {
	return &Authorization{Status: enums.PaymentStatusPending}, nil
}

func (c CashOnDelivery) Capture(context.Context, CaptureRequest) (*CaptureResult, error) {
	return nil, errCaptureUnsupported(c.Method())
}
