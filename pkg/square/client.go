package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Payment statuses reported by the Payments API.
const (
	PaymentStatusApproved  = "APPROVED"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusPending   = "PENDING"
	PaymentStatusCanceled  = "CANCELED"
	PaymentStatusFailed    = "FAILED"
)

var hosts = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

var (
	errAccessTokenRequired = errors.New("square access token is required")
	errLocationRequired    = errors.New("square location id is required")
	errInvalidSquareEnv    = errors.New("square environment must be sandbox or production")
	errLoggerRequired      = errors.New("square logger is required")
)

// Client takes card payments for one Square location.
type Client struct {
	sdk        *sqclient.Client
	locationID string
	logger     *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	host, ok := hosts[cfg.Environment()]
	if !ok {
		return nil, errInvalidSquareEnv
	}
	if override := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); override != "" {
		host = override
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errAccessTokenRequired
	}
	location := strings.TrimSpace(cfg.LocationID)
	if location == "" {
		return nil, errLocationRequired
	}

	c := &Client{
		sdk:        sqclient.NewClient(sqoption.WithBaseURL(host), sqoption.WithToken(token)),
		locationID: location,
		logger:     logg,
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"square_env":  cfg.Environment(),
		"location_id": location,
	}), "square client ready")
	return c, nil
}

// CreatePayment charges the card source and completes the payment in one call.
func (c *Client) CreatePayment(ctx context.Context, charge Charge) (*sq.Payment, error) {
	if err := charge.validate(); err != nil {
		return nil, err
	}
	req := charge.request(c.locationID)
	ctx = c.logger.WithFields(ctx, map[string]any{
		"square_op":       "create_payment",
		"order_reference": charge.OrderReference,
		"amount":          charge.smallestUnit(),
		"currency":        charge.currency(),
		"source_id":       req.SourceID,
	})

	resp, err := c.sdk.Payments.Create(ctx, req)
	if err != nil {
		mapped := classify(err)
		c.logger.Error(ctx, "square.charge_failed", mapped)
		return nil, mapped
	}

	payment := resp.GetPayment()
	c.logger.Info(c.logger.WithFields(ctx, map[string]any{
		"payment_id": value(payment.GetID()),
		"status":     value(payment.GetStatus()),
	}), "square.charge_completed")
	return payment, nil
}

// PaymentSucceeded reports whether a Payments API status means the funds were taken.
func PaymentSucceeded(status string) bool {
	status = strings.ToUpper(strings.TrimSpace(status))
	return status == PaymentStatusCompleted || status == PaymentStatusApproved
}

// errorCodes override the HTTP status when Square names the failure precisely.
var errorCodes = map[string]pkgerrors.Code{
	string(sq.ErrorCodeIdempotencyKeyReused): pkgerrors.CodeIdempotency,
}

var categoryCodes = map[string]pkgerrors.Code{
	"AUTHENTICATION_ERROR": pkgerrors.CodeUnauthorized,
	"PAYMENT_METHOD_ERROR": pkgerrors.CodePaymentFailed,
	"RATE_LIMIT_ERROR":     pkgerrors.CodeRateLimit,
}

var statusCodes = map[int]pkgerrors.Code{
	http.StatusBadRequest:          pkgerrors.CodeValidation,
	http.StatusUnauthorized:        pkgerrors.CodeUnauthorized,
	http.StatusPaymentRequired:     pkgerrors.CodePaymentFailed,
	http.StatusForbidden:           pkgerrors.CodeForbidden,
	http.StatusNotFound:            pkgerrors.CodeNotFound,
	http.StatusConflict:            pkgerrors.CodeConflict,
	http.StatusUnprocessableEntity: pkgerrors.CodeStateConflict,
	http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
}

// classify turns an SDK failure into a typed error. Transport failures and 5xx
// answers are dependency errors.
func classify(err error) error {
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "square create payment failed")
	}
	code, ok := statusCodes[apiErr.StatusCode]
	if !ok {
		code = pkgerrors.CodeDependency
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			code = pkgerrors.CodeValidation
		}
	}
	for _, detail := range responseErrors(apiErr) {
		if override, ok := errorCodes[string(detail.Code)]; ok {
			code = override
			break
		}
		if override, ok := categoryCodes[string(detail.Category)]; ok {
			code = override
			break
		}
	}
	return pkgerrors.Wrap(code, err, fmt.Sprintf("square create payment failed (%d)", apiErr.StatusCode))
}

// responseErrors decodes the errors array the SDK keeps as the wrapped error text.
func responseErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(inner.Error()), &body); err != nil {
		return nil
	}
	out := body.Errors[:0]
	for _, e := range body.Errors {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func value(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
