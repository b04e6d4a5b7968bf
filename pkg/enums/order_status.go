package enums

// OrderStatus tracks an order from placement to confirmation or cancellation.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (o OrderStatus) String() string { return string(o) }

// CanTransitionTo reports whether the order may move to next.
// Only pending orders move; confirmed and cancelled are final.
func (o OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return o == OrderStatusPending && (next == OrderStatusConfirmed || next == OrderStatusCancelled)
}
