package enums

import "testing"

func TestParseCurrency(t *testing.T) {
	got, err := ParseCurrency(" VND ")
	if err != nil || got != CurrencyVND {
		t.Fatalf("expected VND, got %q err=%v", got, err)
	}
	for _, raw := range []string{"vnd", "EUR", ""} {
		if _, err := ParseCurrency(raw); err == nil {
			t.Fatalf("expected %q rejected", raw)
		}
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusPending, false},
		{OrderStatusConfirmed, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPending, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: got %v want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestPaymentMethodTraits(t *testing.T) {
	if !PaymentMethodPayPal.IsRedirect() || PaymentMethodSquare.IsRedirect() || PaymentMethodCOD.IsRedirect() {
		t.Fatalf("only paypal redirects")
	}
	if PaymentMethod("stripe").IsValid() {
		t.Fatalf("unknown gateway must be invalid")
	}
}

func TestPendingCheckoutTerminal(t *testing.T) {
	if PendingCheckoutCancelled.IsTerminal() || PendingCheckoutPending.IsTerminal() {
		t.Fatalf("cancelled and pending rows must stay retryable")
	}
	if !PendingCheckoutCompleted.IsTerminal() || !PendingCheckoutFailed.IsTerminal() {
		t.Fatalf("completed and failed rows must replay")
	}
}

func TestOutboxTypesValid(t *testing.T) {
	if !EventPaymentAbandoned.IsValid() || OutboxEventType("order_shipped").IsValid() {
		t.Fatalf("unexpected event type validity")
	}
	if !AggregatePendingCheckout.IsValid() || OutboxAggregateType("cart").IsValid() {
		t.Fatalf("unexpected aggregate validity")
	}
}
