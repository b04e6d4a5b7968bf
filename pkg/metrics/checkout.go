package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records cart, checkout and gateway activity.
type CheckoutMetrics struct {
	cartMutations   *prometheus.CounterVec
	ordersPlaced    *prometheus.CounterVec
	paymentOutcomes *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	cartMutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_mutations_total",
		Help: "Cart mutations by operation and owner kind.",
	}, []string{"operation", "owner"})
	ordersPlaced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_orders_placed_total",
		Help: "Orders written by payment method.",
	}, []string{"method"})
	paymentOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_payment_outcomes_total",
		Help: "Payment outcomes by gateway.",
	}, []string{"gateway", "outcome"})
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_gateway_call_duration_seconds",
		Help:    "Duration of payment gateway calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"gateway", "operation"})
	reg.MustRegister(cartMutations, ordersPlaced, paymentOutcomes, gatewayDuration)
	return &CheckoutMetrics{
		cartMutations:   cartMutations,
		ordersPlaced:    ordersPlaced,
		paymentOutcomes: paymentOutcomes,
		gatewayDuration: gatewayDuration,
	}
}

// IncCartMutation counts a successful cart mutation.
func (m *CheckoutMetrics) IncCartMutation(operation string, authenticated bool) {
	if m == nil || m.cartMutations == nil {
		return
	}
	owner := "anonymous"
	if authenticated {
		owner = "user"
	}
	m.cartMutations.WithLabelValues(normalizeLabel(operation), owner).Inc()
}

// IncOrderPlaced counts a committed order.
func (m *CheckoutMetrics) IncOrderPlaced(method string) {
	if m == nil || m.ordersPlaced == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(normalizeLabel(method)).Inc()
}

// IncPaymentOutcome counts a payment result such as completed, declined or cancelled.
func (m *CheckoutMetrics) IncPaymentOutcome(gateway, outcome string) {
	if m == nil || m.paymentOutcomes == nil {
		return
	}
	m.paymentOutcomes.WithLabelValues(normalizeLabel(gateway), normalizeLabel(outcome)).Inc()
}

// ObserveGatewayCall records how long a gateway round trip took.
func (m *CheckoutMetrics) ObserveGatewayCall(gateway, operation string, duration time.Duration) {
	if m == nil || m.gatewayDuration == nil {
		return
	}
	m.gatewayDuration.WithLabelValues(normalizeLabel(gateway), normalizeLabel(operation)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
