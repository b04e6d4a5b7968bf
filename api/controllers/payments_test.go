package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	cartsvc "github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func withGateway(req *http.Request, gateway string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("gateway", gateway)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func noticeOf(t *testing.T, location string) string {
	t.Helper()
	parsed, err := url.Parse(location)
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	return parsed.Query().Get("notice")
}

func TestPaymentInitiateRedirectsToGateway(t *testing.T) {
	svc := &stubPaymentService{result: &payments.CheckoutResult{RedirectURL: "https://paypal.example/approve", Token: "PP-1"}}
	handler := PaymentInitiate(svc, stubCheckoutService{}, nil)

	req := anonymousRequest(http.MethodPost, "/api/v1/payments/paypal/initiate", `{"shipping":`+validShipping+`}`, "cart-token")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, withGateway(req, "paypal"))

	if resp.Code != http.StatusSeeOther {
		t.Fatalf("expected 303 got %d: %s", resp.Code, resp.Body.String())
	}
	if resp.Header().Get("Location") != "https://paypal.example/approve" {
		t.Fatalf("unexpected location %q", resp.Header().Get("Location"))
	}
	if svc.lastInput.Method != enums.PaymentMethodPayPal {
		t.Fatalf("unexpected method %s", svc.lastInput.Method)
	}
}

func TestPaymentInitiateRejectsDirectGateway(t *testing.T) {
	svc := &stubPaymentService{}
	handler := PaymentInitiate(svc, stubCheckoutService{}, nil)

	req := anonymousRequest(http.MethodPost, "/api/v1/payments/square/initiate", `{"shipping":`+validShipping+`}`, "")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, withGateway(req, "square"))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestPaymentReturnRedirectsToConfirmation(t *testing.T) {
	orderID := uuid.New()
	svc := &stubPaymentService{outcome: &payments.CaptureOutcome{Token: "PP-1", Status: enums.PendingCheckoutCompleted, OrderID: &orderID}}
	handler := PaymentReturn(svc, testCheckoutConfig(), testCartTokenConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/paypal/return?token=PP-1&PayerID=PAYER", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, withGateway(req, "paypal"))

	if resp.Code != http.StatusSeeOther {
		t.Fatalf("expected 303 got %d", resp.Code)
	}
	want := "https://shop.example/orders/" + orderID.String() + "/confirmation"
	if resp.Header().Get("Location") != want {
		t.Fatalf("unexpected location %q", resp.Header().Get("Location"))
	}
	if svc.lastToken != "PP-1" || svc.lastPayer != "PAYER" {
		t.Fatalf("unexpected capture args token=%q payer=%q", svc.lastToken, svc.lastPayer)
	}
}

func TestPaymentReturnReissuesClearedGuestCart(t *testing.T) {
	store, err := cartsvc.NewTokenStore(testCartTokenConfig(), nil)
	if err != nil {
		t.Fatalf("token store: %v", err)
	}
	held, err := store.Encode(cartsvc.Lines{NextID: 1, Items: []cartsvc.Line{{ID: 1, ProductID: uuid.New(), Quantity: 2}}})
	if err != nil {
		t.Fatalf("encode held cart: %v", err)
	}
	cleared, err := store.Clear(context.Background(), cartsvc.Owner{Token: held})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}

	orderID := uuid.New()
	svc := &stubPaymentService{outcome: &payments.CaptureOutcome{
		Token:   "PP-1",
		Status:  enums.PendingCheckoutCompleted,
		OrderID: &orderID,
		Cart:    cleared,
	}}
	handler := PaymentReturn(svc, testCheckoutConfig(), testCartTokenConfig(), nil)

	req := anonymousRequest(http.MethodGet, "/api/v1/payments/paypal/return?token=PP-1&PayerID=PAYER", "", held)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, withGateway(req, "paypal"))

	if resp.Code != http.StatusSeeOther {
		t.Fatalf("expected 303 got %d", resp.Code)
	}
	headerToken := resp.Header().Get("X-Cart-Token")
	if headerToken == "" || headerToken == held {
		t.Fatalf("expected a fresh cart token, got %q", headerToken)
	}
	var cookieToken string
	for _, c := range resp.Result().Cookies() {
		if c.Name == "sf_cart" {
			cookieToken = c.Value
		}
	}
	if cookieToken != headerToken {
		t.Fatalf("cookie %q does not match header %q", cookieToken, headerToken)
	}
	lines, err := store.Decode(headerToken)
	if err != nil {
		t.Fatalf("decode reissued token: %v", err)
	}
	if len(lines.Items) != 0 {
		t.Fatalf("expected empty cart after checkout, got %d lines", len(lines.Items))
	}
}

func TestPaymentReturnFailureLeavesCartTokenAlone(t *testing.T) {
	svc := &stubPaymentService{
		outcome: &payments.CaptureOutcome{Token: "PP-1", Status: enums.PendingCheckoutFailed, Notice: payments.NoticeFailed},
		err:     pkgerrors.New(pkgerrors.CodePaymentFailed, "declined"),
	}
	handler := PaymentReturn(svc, testCheckoutConfig(), testCartTokenConfig(), nil)

	req := anonymousRequest(http.MethodGet, "/api/v1/payments/paypal/return?token=PP-1", "", "held-token")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, withGateway(req, "paypal"))

	if resp.Header().Get("X-Cart-Token") != "" || len(resp.Result().Cookies()) != 0 {
		t.Fatalf("failed capture must not touch the cart token")
	}
}

func TestPaymentReturnFailureKeepsShopperOnCheckout(t *testing.T) {
	svc := &stubPaymentService{
		outcome: &payments.CaptureOutcome{Token: "PP-1", Status: enums.PendingCheckoutFailed, Notice: payments.NoticeCartChanged},
		err:     pkgerrors.New(pkgerrors.CodePaymentFailed, "cart total changed during payment"),
	}
	handler := PaymentReturn(svc, testCheckoutConfig(), testCartTokenConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/paypal/return?token=PP-1", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, withGateway(req, "paypal"))

	if resp.Code != http.StatusSeeOther {
		t.Fatalf("expected 303 got %d", resp.Code)
	}
	location := resp.Header().Get("Location")
	if !strings.HasPrefix(location, "https://shop.example/checkout") {
		t.Fatalf("unexpected location %q", location)
	}
	if noticeOf(t, location) != payments.NoticeCartChanged {
		t.Fatalf("unexpected notice %q", noticeOf(t, location))
	}
}

func TestPaymentReturnUnknownTokenUsesGenericNotice(t *testing.T) {
	svc := &stubPaymentService{err: pkgerrors.New(pkgerrors.CodeNotFound, "checkout not found")}
	handler := PaymentReturn(svc, testCheckoutConfig(), testCartTokenConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/paypal/return?token=nope", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, withGateway(req, "paypal"))

	if noticeOf(t, resp.Header().Get("Location")) != payments.NoticeFailed {
		t.Fatalf("unexpected location %q", resp.Header().Get("Location"))
	}
}

func TestPaymentCancelRedirectsWithNotice(t *testing.T) {
	svc := &stubPaymentService{notice: payments.NoticeCancelled}
	handler := PaymentCancel(svc, testCheckoutConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/paypal/cancel?token=PP-1", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, withGateway(req, "paypal"))

	if resp.Code != http.StatusSeeOther {
		t.Fatalf("expected 303 got %d", resp.Code)
	}
	if svc.lastGateway != enums.PaymentMethodPayPal || svc.lastToken != "PP-1" {
		t.Fatalf("unexpected cancel args %s %s", svc.lastGateway, svc.lastToken)
	}
	if noticeOf(t, resp.Header().Get("Location")) != payments.NoticeCancelled {
		t.Fatalf("unexpected location %q", resp.Header().Get("Location"))
	}
}
