package payloads

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderPlacedEvent is emitted in the same transaction that writes the order.
type OrderPlacedEvent struct {
	OrderID       uuid.UUID           `json:"orderId"`
	UserID        *uuid.UUID          `json:"userId,omitempty"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod"`
	PaymentStatus enums.PaymentStatus `json:"paymentStatus"`
	Subtotal      int64               `json:"subtotal"`
	ShippingFee   int64               `json:"shippingFee"`
	Total         int64               `json:"total"`
	Currency      string              `json:"currency"`
	ItemCount     int                 `json:"itemCount"`
}

// PaymentCapturedEvent is emitted when a redirect gateway capture commits an order.
type PaymentCapturedEvent struct {
	OrderID            uuid.UUID           `json:"orderId"`
	Gateway            enums.PaymentMethod `json:"gateway"`
	GatewayReference   string              `json:"gatewayReference"`
	Amount             int64               `json:"amount"`
	SettlementAmount   string              `json:"settlementAmount"`
	SettlementCurrency string              `json:"settlementCurrency"`
}

// PaymentAbandonedEvent is emitted when a parked redirect checkout is cancelled or declined.
type PaymentAbandonedEvent struct {
	Token   string                      `json:"token"`
	Gateway enums.PaymentMethod         `json:"gateway"`
	Status  enums.PendingCheckoutStatus `json:"status"`
	Reason  string                      `json:"reason,omitempty"`
}
