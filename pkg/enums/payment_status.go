package enums

// PaymentStatus is the state of one settlement attempt. An order can stay
// pending while its COD payment is pending too.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusDeclined  PaymentStatus = "declined"
	PaymentStatusFailed    PaymentStatus = "failed"
)

func (p PaymentStatus) String() string { return string(p) }
