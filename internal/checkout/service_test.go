package checkout_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/checkout/checkouttest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func TestPlaceCashOnDeliveryWritesPendingOrderAndClearsCart(t *testing.T) {
	f := checkouttest.New(t, checkouttest.Options{DecrementStock: true})
	ctx := context.Background()
	tee := f.SeedProduct(t, "Tee", 150000, 10)
	mug := f.SeedProduct(t, "Mug", 60000, 10)
	owner := cart.UserOwner(uuid.New())

	if _, err := f.Carts.Add(ctx, owner, tee.ID, nil, 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := f.Carts.Add(ctx, owner, mug.ID, nil, 3); err != nil {
		t.Fatalf("add: %v", err)
	}

	placed, err := f.Checkout.Place(ctx, checkout.PlaceInput{
		Owner:    owner,
		Shipping: checkouttest.Shipping(),
		Method:   enums.PaymentMethodCOD,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	order := placed.Order
	if order.Status != enums.OrderStatusPending {
		t.Fatalf("expected pending order, got %s", order.Status)
	}
	if order.Subtotal != 480000 || order.ShippingFee != 30000 || order.Total != 510000 {
		t.Fatalf("unexpected totals %+v", order)
	}
	if f.Count(t, &models.Order{}) != 1 || f.Count(t, &models.OrderItem{}) != 2 || f.Count(t, &models.Payment{}) != 1 {
		t.Fatal("expected exactly one order, two items and one payment")
	}
	if len(order.Payments) != 1 || order.Payments[0].Status != enums.PaymentStatusPending || order.Payments[0].Amount != order.Total {
		t.Fatalf("unexpected payment %+v", order.Payments)
	}

	remaining, err := f.Carts.List(ctx, owner)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !remaining.Empty() {
		t.Fatalf("expected cart cleared, got %+v", remaining.Items)
	}

	var stocked models.Product
	if err := f.DB.First(&stocked, "id = ?", tee.ID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	if stocked.Stock != 8 {
		t.Fatalf("expected stock decremented to 8, got %d", stocked.Stock)
	}
	if events := f.Events(t); len(events) != 1 || events[0] != enums.EventOrderPlaced {
		t.Fatalf("expected order_placed event, got %v", events)
	}
}

func TestPlaceAnonymousReturnsEmptyToken(t *testing.T) {
	f := checkouttest.New(t, checkouttest.Options{})
	ctx := context.Background()
	product := f.SeedProduct(t, "Lamp", 700000, 3)

	c, err := f.Carts.Add(ctx, cart.TokenOwner(""), product.ID, nil, 1)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	placed, err := f.Checkout.Place(ctx, checkout.PlaceInput{
		Owner:    cart.TokenOwner(c.Token),
		Shipping: checkouttest.Shipping(),
		Method:   enums.PaymentMethodCOD,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if placed.Order.UserID != nil || placed.Order.ShippingFee != 15000 {
		t.Fatalf("unexpected anonymous order %+v", placed.Order)
	}
	if placed.Cart == nil || placed.Cart.Token == "" || !placed.Cart.Empty() {
		t.Fatalf("expected a fresh empty token, got %+v", placed.Cart)
	}
}

func TestPlaceRejectsEmptyCartBeforeWriting(t *testing.T) {
	f := checkouttest.New(t, checkouttest.Options{})
	_, err := f.Checkout.Place(context.Background(), checkout.PlaceInput{
		Owner:    cart.UserOwner(uuid.New()),
		Shipping: checkouttest.Shipping(),
		Method:   enums.PaymentMethodCOD,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.Count(t, &models.Order{}) != 0 {
		t.Fatal("no order may be written for an empty cart")
	}
}

func TestPlaceRejectsInvalidShipping(t *testing.T) {
	f := checkouttest.New(t, checkouttest.Options{})
	ctx := context.Background()
	product := f.SeedProduct(t, "Lamp", 700000, 3)
	owner := cart.UserOwner(uuid.New())
	_, _ = f.Carts.Add(ctx, owner, product.ID, nil, 1)

	shipping := checkouttest.Shipping()
	shipping.Email = "not-an-email"
	shipping.City = "  "
	_, err := f.Checkout.Place(ctx, checkout.PlaceInput{Owner: owner, Shipping: shipping, Method: enums.PaymentMethodCOD})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok || details["email"] == "" || details["city"] == "" {
		t.Fatalf("expected field errors, got %#v", typed.Details())
	}
}

func TestPlaceRollsBackWhenSettlementFails(t *testing.T) {
	f := checkouttest.New(t, checkouttest.Options{DecrementStock: true})
	ctx := context.Background()
	product := f.SeedProduct(t, "Chair", 400000, 5)
	owner := cart.UserOwner(uuid.New())
	_, _ = f.Carts.Add(ctx, owner, product.ID, nil, 2)

	declined := pkgerrors.New(pkgerrors.CodePaymentFailed, "card declined")
	_, err := f.Checkout.Place(ctx, checkout.PlaceInput{
		Owner:    owner,
		Shipping: checkouttest.Shipping(),
		Method:   enums.PaymentMethodSquare,
		Settle: func(context.Context, *models.Order) (*checkout.Settlement, error) {
			return nil, declined
		},
	})
	if !errors.Is(err, declined) {
		t.Fatalf("expected decline to surface, got %v", err)
	}
	if f.Count(t, &models.Order{}) != 0 || f.Count(t, &models.Payment{}) != 0 || f.Count(t, &models.OutboxEvent{}) != 0 {
		t.Fatal("rollback must discard order, payment and event")
	}
	var stocked models.Product
	_ = f.DB.First(&stocked, "id = ?", product.ID).Error
	if stocked.Stock != 5 {
		t.Fatalf("stock must be restored, got %d", stocked.Stock)
	}
	remaining, _ := f.Carts.List(ctx, owner)
	if len(remaining.Items) != 1 {
		t.Fatal("cart must be preserved after a failed checkout")
	}
}

func TestPlaceSynchronousSettlementConfirms(t *testing.T) {
	f := checkouttest.New(t, checkouttest.Options{})
	ctx := context.Background()
	product := f.SeedProduct(t, "Desk", 1200000, 2)
	owner := cart.UserOwner(uuid.New())
	_, _ = f.Carts.Add(ctx, owner, product.ID, nil, 1)

	placed, err := f.Checkout.Place(ctx, checkout.PlaceInput{
		Owner:    owner,
		Shipping: checkouttest.Shipping(),
		Method:   enums.PaymentMethodSquare,
		Terms:    &checkout.PaymentTerms{SettlementCurrency: "USD", SettlementAmount: "48.00"},
		Settle: func(context.Context, *models.Order) (*checkout.Settlement, error) {
			return &checkout.Settlement{GatewayReference: "sq_pay_1"}, nil
		},
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if placed.Order.Status != enums.OrderStatusConfirmed || placed.Order.ShippingFee != 0 {
		t.Fatalf("unexpected order %+v", placed.Order)
	}
	var payment models.Payment
	if err := f.DB.First(&payment, "order_id = ?", placed.Order.ID).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if payment.Status != enums.PaymentStatusCompleted || payment.PaidAt == nil || payment.GatewayReference == nil || *payment.GatewayReference != "sq_pay_1" {
		t.Fatalf("unexpected payment %+v", payment)
	}
	if payment.SettlementAmount == nil || *payment.SettlementAmount != "48.00" {
		t.Fatalf("expected settlement terms recorded, got %+v", payment)
	}
}

func TestPlaceRejectsRedirectMethods(t *testing.T) {
	f := checkouttest.New(t, checkouttest.Options{})
	_, err := f.Checkout.Place(context.Background(), checkout.PlaceInput{
		Owner:    cart.UserOwner(uuid.New()),
		Shipping: checkouttest.Shipping(),
		Method:   enums.PaymentMethodPayPal,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestQuoteRepricesAndPrefills(t *testing.T) {
	f := checkouttest.New(t, checkouttest.Options{})
	ctx := context.Background()
	product := f.SeedProduct(t, "Rug", 250000, 10)
	owner := cart.UserOwner(uuid.New())
	_, _ = f.Carts.Add(ctx, owner, product.ID, nil, 2)

	quote, err := f.Checkout.Quote(ctx, owner)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Totals.Subtotal != 500000 || quote.Totals.ShippingFee != 15000 || quote.Prefill != nil {
		t.Fatalf("unexpected quote %+v", quote)
	}

	if err := f.DB.Model(&models.Product{}).Where("id = ?", product.ID).Update("price", 240000).Error; err != nil {
		t.Fatalf("reprice: %v", err)
	}
	if _, err := f.Checkout.Place(ctx, checkout.PlaceInput{Owner: owner, Shipping: checkouttest.Shipping(), Method: enums.PaymentMethodCOD}); err != nil {
		t.Fatalf("place: %v", err)
	}
	var order models.Order
	_ = f.DB.First(&order).Error
	if order.Subtotal != 480000 || order.ShippingFee != 30000 {
		t.Fatalf("expected live price to be charged, got %+v", order)
	}

	quote, err = f.Checkout.Quote(ctx, owner)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Prefill == nil || quote.Prefill.City != "Da Nang" {
		t.Fatalf("expected prefill from last order, got %+v", quote.Prefill)
	}
	if quote.Count != 0 || quote.Totals.ShippingFee != 30000 {
		t.Fatalf("expected empty cart quote, got %+v", quote)
	}
}

func TestPrepareRejectsUnavailableLines(t *testing.T) {
	f := checkouttest.New(t, checkouttest.Options{})
	ctx := context.Background()
	keep := f.SeedProduct(t, "Vase", 90000, 10)
	gone := f.SeedProduct(t, "Frame", 50000, 10)
	owner := cart.UserOwner(uuid.New())
	_, _ = f.Carts.Add(ctx, owner, keep.ID, nil, 1)
	_, _ = f.Carts.Add(ctx, owner, gone.ID, nil, 1)

	if err := f.DB.Delete(&models.Product{}, "id = ?", gone.ID).Error; err != nil {
		t.Fatalf("delete: %v", err)
	}
	quote, err := f.Checkout.Quote(ctx, owner)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if len(quote.Lines) != 1 || len(quote.Unavailable) != 1 {
		t.Fatalf("unexpected quote %+v", quote)
	}
	if _, err := f.Checkout.Prepare(ctx, owner); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
