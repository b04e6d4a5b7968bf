// Package paypal is a thin Orders v2 REST client authenticated with OAuth2 client credentials.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	sandboxEnv = "sandbox"
	liveEnv    = "live"

	requestTimeout = 20 * time.Second
)

var baseURLs = map[string]string{
	sandboxEnv: "https://api-m.sandbox.paypal.com",
	liveEnv:    "https://api-m.paypal.com",
}

var (
	errCredentialsRequired = errors.New("paypal client id and secret are required")
	errInvalidEnv          = fmt.Errorf("paypal environment must be %q or %q", sandboxEnv, liveEnv)
	errLoggerRequired      = errors.New("paypal logger is required")
)

// Client calls the PayPal Orders v2 API.
type Client struct {
	http      *http.Client
	baseURL   string
	brandName string
	logger    *logger.Logger
}

// NewClient builds a client whose transport fetches and refreshes access tokens on demand.
func NewClient(ctx context.Context, cfg config.PayPalConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	if !cfg.Enabled() {
		return nil, errCredentialsRequired
	}
	baseURL, ok := baseURLs[cfg.Environment()]
	if !ok {
		return nil, errInvalidEnv
	}
	if override := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); override != "" {
		baseURL = override
	}

	creds := clientcredentials.Config{
		ClientID:     strings.TrimSpace(cfg.ClientID),
		ClientSecret: strings.TrimSpace(cfg.Secret),
		TokenURL:     baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	httpClient := creds.Client(context.WithoutCancel(ctx))
	httpClient.Timeout = requestTimeout

	logg.Info(ctx, "paypal client initialized")
	return &Client{
		http:      httpClient,
		baseURL:   baseURL,
		brandName: cfg.BrandName,
		logger:    logg,
	}, nil
}

// CreateOrder registers a CAPTURE-intent order and returns it with its approval link.
func (c *Client) CreateOrder(ctx context.Context, params CreateOrderParams) (*Order, error) {
	body := createOrderBody{
		Intent: "CAPTURE",
		PurchaseUnits: []PurchaseUnit{{
			ReferenceID: params.ReferenceID,
			Description: params.Description,
			Amount: &Amount{
				CurrencyCode: strings.ToUpper(strings.TrimSpace(params.Currency)),
				Value:        params.Value,
			},
		}},
		PaymentSource: paymentSource{PayPal: paypalSource{ExperienceContext: experienceContext{
			BrandName:          c.brandName,
			ReturnURL:          params.ReturnURL,
			CancelURL:          params.CancelURL,
			UserAction:         "PAY_NOW",
			ShippingPreference: "NO_SHIPPING",
		}}},
	}
	c.log(ctx, "request", "create_order", map[string]any{
		"reference_id": params.ReferenceID,
		"currency":     body.PurchaseUnits[0].Amount.CurrencyCode,
		"value":        params.Value,
	})

	var order Order
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", params.RequestID, body, &order); err != nil {
		c.log(ctx, "error", "create_order", map[string]any{"error": err.Error()})
		return nil, mapAPIError(err, "create order")
	}
	if order.ApprovalURL() == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paypal order missing approval link")
	}
	c.log(ctx, "response", "create_order", map[string]any{"order_id": order.ID, "status": order.Status})
	return &order, nil
}

// CaptureOrder captures an approved order. requestID makes retries idempotent on PayPal's side.
func (c *Client) CaptureOrder(ctx context.Context, orderID, requestID string) (*Order, error) {
	c.log(ctx, "request", "capture_order", map[string]any{"order_id": orderID})

	var order Order
	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	if err := c.do(ctx, http.MethodPost, path, requestID, struct{}{}, &order); err != nil {
		c.log(ctx, "error", "capture_order", map[string]any{"order_id": orderID, "error": err.Error()})
		return nil, mapAPIError(err, "capture order")
	}
	captureID, captureStatus := order.CaptureID()
	c.log(ctx, "response", "capture_order", map[string]any{
		"order_id":       order.ID,
		"status":         order.Status,
		"capture_id":     captureID,
		"capture_status": captureStatus,
	})
	return &order, nil
}

// GetOrder reads the current state of an order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), "", nil, &order); err != nil {
		c.log(ctx, "error", "get_order", map[string]any{"order_id": orderID, "error": err.Error()})
		return nil, mapAPIError(err, "get order")
	}
	return &order, nil
}

func (c *Client) do(ctx context.Context, method, path, requestID string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding paypal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building paypal request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling paypal: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading paypal response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding paypal response: %w", err)
	}
	return nil
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"gateway":   "paypal",
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("paypal %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("paypal %s", phase))
	}
}
