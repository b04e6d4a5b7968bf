package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// StockDecrementer subtracts ordered quantities with a stock guard.
type StockDecrementer interface {
	DecrementStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, qty int) (bool, error)
}

// StockFactory binds a stock decrementer to the order transaction.
type StockFactory func(tx *gorm.DB) StockDecrementer

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Draft is everything the writer needs to materialize one order.
type Draft struct {
	UserID   *uuid.UUID
	Shipping ShippingDetails
	Method   enums.PaymentMethod
	Lines    []cart.PricedLine
	Totals   Totals
}

// Settlement is the outcome of a synchronous charge or a redirect capture.
type Settlement struct {
	GatewayReference   string
	SettlementCurrency string
	SettlementAmount   string
	PaidAt             time.Time
}

// SettleFunc runs inside the order transaction after the rows are written. Returning an
// error rolls the whole order back; a nil settlement leaves the payment pending.
type SettleFunc func(ctx context.Context, order *models.Order) (*Settlement, error)

// PaymentTerms is the unsettled payment context recorded with the pending payment row.
type PaymentTerms struct {
	SettlementCurrency string
	SettlementAmount   string
}

// Writer turns a priced cart into an order, its items and one payment inside a caller
// supplied transaction.
type Writer struct {
	orders         orders.Repository
	stock          StockFactory
	outbox         outboxPublisher
	currency       string
	decrementStock bool
}

// WriterConfig holds the writer's dependencies.
type WriterConfig struct {
	Orders         orders.Repository
	Stock          StockFactory
	Outbox         outboxPublisher
	Currency       string
	DecrementStock bool
}

func NewWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if cfg.Stock == nil {
		return nil, fmt.Errorf("stock factory required")
	}
	if cfg.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if cfg.Currency == "" {
		return nil, fmt.Errorf("currency required")
	}
	return &Writer{
		orders:         cfg.Orders,
		stock:          cfg.Stock,
		outbox:         cfg.Outbox,
		currency:       cfg.Currency,
		decrementStock: cfg.DecrementStock,
	}, nil
}

// WriteTx creates the order pending with a pending payment, decrements stock, and when
// settle is set charges or captures and confirms the order. The order_placed event is
// queued with the final statuses.
func (w *Writer) WriteTx(ctx context.Context, tx *gorm.DB, draft Draft, terms *PaymentTerms, settle SettleFunc) (*models.Order, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if len(draft.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if !draft.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}
	repo := w.orders.WithTx(tx)

	order := &models.Order{
		UserID:      draft.UserID,
		Status:      enums.OrderStatusPending,
		Subtotal:    draft.Totals.Subtotal,
		ShippingFee: draft.Totals.ShippingFee,
		Tax:         draft.Totals.Tax,
		Total:       draft.Totals.Total,
		Currency:    w.currency,
		FullName:    draft.Shipping.FullName,
		Email:       draft.Shipping.Email,
		Phone:       draft.Shipping.Phone,
		AddressLine: draft.Shipping.AddressLine,
		City:        draft.Shipping.City,
		Note:        draft.Shipping.Note,
	}
	if err := repo.CreateOrder(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checkout failed")
	}

	items := make([]models.OrderItem, 0, len(draft.Lines))
	for _, line := range draft.Lines {
		items = append(items, models.OrderItem{
			OrderID:     order.ID,
			ProductID:   line.ProductID,
			VariantID:   line.VariantID,
			ProductName: line.Name,
			Size:        line.Size,
			Color:       line.Color,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.UnitPrice * int64(line.Quantity),
		})
	}
	if err := repo.CreateItems(ctx, items); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checkout failed")
	}

	payment := &models.Payment{
		OrderID: order.ID,
		Method:  draft.Method,
		Status:  enums.PaymentStatusPending,
		Amount:  order.Total,
	}
	if terms != nil {
		payment.SettlementCurrency = stringPtr(terms.SettlementCurrency)
		payment.SettlementAmount = stringPtr(terms.SettlementAmount)
	}
	if err := repo.CreatePayment(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checkout failed")
	}

	if w.decrementStock {
		if err := w.reserveStock(ctx, tx, draft.Lines); err != nil {
			return nil, err
		}
	}

	if settle != nil {
		settlement, err := settle(ctx, order)
		if err != nil {
			return nil, err
		}
		if settlement != nil {
			if err := w.settle(ctx, tx, order, payment, settlement); err != nil {
				return nil, err
			}
		}
	}

	order.Items = items
	order.Payments = []models.Payment{*payment}

	itemCount := 0
	for _, item := range items {
		itemCount += item.Quantity
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         outbox.ActorFor(draft.UserID),
		Data: payloads.OrderPlacedEvent{
			OrderID:       order.ID,
			UserID:        draft.UserID,
			Status:        order.Status,
			PaymentMethod: payment.Method,
			PaymentStatus: payment.Status,
			Subtotal:      order.Subtotal,
			ShippingFee:   order.ShippingFee,
			Total:         order.Total,
			Currency:      order.Currency,
			ItemCount:     itemCount,
		},
	}
	if err := w.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checkout failed")
	}
	return order, nil
}

func (w *Writer) reserveStock(ctx context.Context, tx *gorm.DB, lines []cart.PricedLine) error {
	stock := w.stock(tx)
	for _, line := range lines {
		ok, err := stock.DecrementStock(ctx, line.ProductID, line.VariantID, line.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checkout failed")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "an item sold out while checking out").
				WithDetails(map[string]any{
					"productId": line.ProductID,
					"variantId": line.VariantID,
					"requested": line.Quantity,
				})
		}
	}
	return nil
}

func (w *Writer) settle(ctx context.Context, tx *gorm.DB, order *models.Order, payment *models.Payment, s *Settlement) error {
	paidAt := s.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	updates := map[string]any{
		"status":  enums.PaymentStatusCompleted,
		"paid_at": paidAt,
	}
	if s.GatewayReference != "" {
		updates["gateway_reference"] = s.GatewayReference
		payment.GatewayReference = stringPtr(s.GatewayReference)
	}
	if s.SettlementCurrency != "" {
		updates["settlement_currency"] = s.SettlementCurrency
		payment.SettlementCurrency = stringPtr(s.SettlementCurrency)
	}
	if s.SettlementAmount != "" {
		updates["settlement_amount"] = s.SettlementAmount
		payment.SettlementAmount = stringPtr(s.SettlementAmount)
	}
	repo := w.orders.WithTx(tx)
	if err := repo.UpdatePayment(ctx, payment.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checkout failed")
	}
	payment.Status = enums.PaymentStatusCompleted
	payment.PaidAt = &paidAt

	moved, err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusConfirmed)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checkout failed")
	}
	if !moved {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order left pending state")
	}
	order.Status = enums.OrderStatusConfirmed
	return nil
}

func stringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
