package paypal

// Order statuses reported by the Orders v2 API.
const (
	OrderStatusCreated   = "CREATED"
	OrderStatusApproved  = "APPROVED"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusVoided    = "VOIDED"

	CaptureStatusCompleted = "COMPLETED"
	CaptureStatusPending   = "PENDING"
	CaptureStatusDeclined  = "DECLINED"
)

// IssueOrderAlreadyCaptured is returned when a capture is replayed for a settled order.
const IssueOrderAlreadyCaptured = "ORDER_ALREADY_CAPTURED"

type Amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type PurchaseUnit struct {
	ReferenceID string                `json:"reference_id,omitempty"`
	CustomID    string                `json:"custom_id,omitempty"`
	Description string                `json:"description,omitempty"`
	Amount      *Amount               `json:"amount,omitempty"`
	Payments    *PurchaseUnitPayments `json:"payments,omitempty"`
}

type PurchaseUnitPayments struct {
	Captures []Capture `json:"captures,omitempty"`
}

type Capture struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Amount *Amount `json:"amount,omitempty"`
}

type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

type Payer struct {
	PayerID      string `json:"payer_id,omitempty"`
	EmailAddress string `json:"email_address,omitempty"`
}

// Order is the subset of an Orders v2 resource the storefront reads.
type Order struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units,omitempty"`
	Payer         *Payer         `json:"payer,omitempty"`
	Links         []Link         `json:"links,omitempty"`
}

// ApprovalURL returns the link the buyer must be redirected to.
func (o *Order) ApprovalURL() string {
	if o == nil {
		return ""
	}
	for _, link := range o.Links {
		if link.Rel == "payer-action" || link.Rel == "approve" {
			return link.Href
		}
	}
	return ""
}

// CaptureID returns the first capture id and its status, if any.
func (o *Order) CaptureID() (string, string) {
	if o == nil {
		return "", ""
	}
	for _, unit := range o.PurchaseUnits {
		if unit.Payments == nil {
			continue
		}
		for _, capture := range unit.Payments.Captures {
			return capture.ID, capture.Status
		}
	}
	return "", ""
}

// Captured reports whether the order settled with a completed capture.
func (o *Order) Captured() bool {
	if o == nil {
		return false
	}
	_, status := o.CaptureID()
	return o.Status == OrderStatusCompleted && status == CaptureStatusCompleted
}

type experienceContext struct {
	BrandName          string `json:"brand_name,omitempty"`
	ReturnURL          string `json:"return_url"`
	CancelURL          string `json:"cancel_url"`
	UserAction         string `json:"user_action"`
	ShippingPreference string `json:"shipping_preference"`
}

type paypalSource struct {
	ExperienceContext experienceContext `json:"experience_context"`
}

type paymentSource struct {
	PayPal paypalSource `json:"paypal"`
}

type createOrderBody struct {
	Intent        string         `json:"intent"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units"`
	PaymentSource paymentSource  `json:"payment_source"`
}

// CreateOrderParams describes a single-unit capture order.
type CreateOrderParams struct {
	RequestID   string
	ReferenceID string
	Description string
	Currency    string
	Value       string
	ReturnURL   string
	CancelURL   string
}
