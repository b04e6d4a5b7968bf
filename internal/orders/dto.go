package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ShippingSnapshot is the contact block copied onto the order at checkout.
type ShippingSnapshot struct {
	FullName    string  `json:"fullName"`
	Email       string  `json:"email"`
	Phone       string  `json:"phone"`
	AddressLine string  `json:"addressLine"`
	City        string  `json:"city"`
	Note        *string `json:"note,omitempty"`
}

// ItemView is one order line as shown on the confirmation page.
type ItemView struct {
	ProductID   uuid.UUID  `json:"productId"`
	VariantID   *uuid.UUID `json:"variantId,omitempty"`
	ProductName string     `json:"productName"`
	Size        string     `json:"size,omitempty"`
	Color       string     `json:"color,omitempty"`
	Quantity    int        `json:"quantity"`
	UnitPrice   int64      `json:"unitPrice"`
	LineTotal   int64      `json:"lineTotal"`
}

// PaymentView summarizes the settlement attempt.
type PaymentView struct {
	Method             enums.PaymentMethod `json:"method"`
	Status             enums.PaymentStatus `json:"status"`
	Amount             int64               `json:"amount"`
	SettlementCurrency *string             `json:"settlementCurrency,omitempty"`
	SettlementAmount   *string             `json:"settlementAmount,omitempty"`
	PaidAt             *time.Time          `json:"paidAt,omitempty"`
}

// OrderDetail is the confirmation view of an order.
type OrderDetail struct {
	ID          uuid.UUID         `json:"id"`
	Status      enums.OrderStatus `json:"status"`
	Currency    string            `json:"currency"`
	Subtotal    int64             `json:"subtotal"`
	ShippingFee int64             `json:"shippingFee"`
	Tax         int64             `json:"tax"`
	Total       int64             `json:"total"`
	Shipping    ShippingSnapshot  `json:"shipping"`
	Items       []ItemView        `json:"items"`
	Payment     *PaymentView      `json:"payment,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// OrderSummary is one row of a shopper's order history.
type OrderSummary struct {
	ID            uuid.UUID           `json:"id"`
	Status        enums.OrderStatus   `json:"status"`
	Total         int64               `json:"total"`
	Currency      string              `json:"currency"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod,omitempty"`
	PaymentStatus enums.PaymentStatus `json:"paymentStatus,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
}

// OrderList wraps a page of summaries plus the next cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// SnapshotOf extracts the shipping block of an order.
func SnapshotOf(order *models.Order) ShippingSnapshot {
	return ShippingSnapshot{
		FullName:    order.FullName,
		Email:       order.Email,
		Phone:       order.Phone,
		AddressLine: order.AddressLine,
		City:        order.City,
		Note:        order.Note,
	}
}

func detailFromModel(order *models.Order) *OrderDetail {
	detail := &OrderDetail{
		ID:          order.ID,
		Status:      order.Status,
		Currency:    order.Currency,
		Subtotal:    order.Subtotal,
		ShippingFee: order.ShippingFee,
		Tax:         order.Tax,
		Total:       order.Total,
		Shipping:    SnapshotOf(order),
		Items:       make([]ItemView, 0, len(order.Items)),
		CreatedAt:   order.CreatedAt,
	}
	for _, item := range order.Items {
		detail.Items = append(detail.Items, ItemView{
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			Size:        item.Size,
			Color:       item.Color,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
		})
	}
	if n := len(order.Payments); n > 0 {
		p := order.Payments[n-1]
		detail.Payment = &PaymentView{
			Method:             p.Method,
			Status:             p.Status,
			Amount:             p.Amount,
			SettlementCurrency: p.SettlementCurrency,
			SettlementAmount:   p.SettlementAmount,
			PaidAt:             p.PaidAt,
		}
	}
	return detail
}

func summaryFromModel(order models.Order) OrderSummary {
	summary := OrderSummary{
		ID:        order.ID,
		Status:    order.Status,
		Total:     order.Total,
		Currency:  order.Currency,
		CreatedAt: order.CreatedAt,
	}
	if n := len(order.Payments); n > 0 {
		summary.PaymentMethod = order.Payments[n-1].Method
		summary.PaymentStatus = order.Payments[n-1].Status
	}
	return summary
}
