package enums

// PendingCheckoutStatus tracks a checkout parked while the shopper approves
// payment on the gateway's site.
type PendingCheckoutStatus string

const (
	PendingCheckoutPending   PendingCheckoutStatus = "pending"
	PendingCheckoutCompleted PendingCheckoutStatus = "completed"
	PendingCheckoutFailed    PendingCheckoutStatus = "failed"
	PendingCheckoutCancelled PendingCheckoutStatus = "cancelled"
)

func (p PendingCheckoutStatus) String() string { return string(p) }

// IsTerminal reports whether a repeated callback should replay the recorded
// outcome instead of capturing again. A cancelled row may still be retried.
func (p PendingCheckoutStatus) IsTerminal() bool {
	return p == PendingCheckoutCompleted || p == PendingCheckoutFailed
}
