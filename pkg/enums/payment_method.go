package enums

// PaymentMethod names the gateway a shopper settles through.
type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodPayPal PaymentMethod = "paypal"
	PaymentMethodSquare PaymentMethod = "square"
)

var paymentMethods = newClosedSet("payment method", PaymentMethodCOD, PaymentMethodPayPal, PaymentMethodSquare)

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool { return paymentMethods.has(p) }

// IsRedirect reports whether the shopper leaves the storefront to approve the
// payment. Square charges a card nonce in place and COD settles at the door.
func (p PaymentMethod) IsRedirect() bool {
	return p == PaymentMethodPayPal
}
