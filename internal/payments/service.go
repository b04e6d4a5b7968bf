package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const (
	NoticeCancelled   = "Payment was cancelled. Your cart has been kept."
	NoticeFailed      = "Payment could not be completed. Your cart has been kept."
	NoticeCartChanged = "Your cart changed while you were paying. Please review it and try again."
	NoticeCompleted   = "Your order has already been placed."
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type checkoutFlow interface {
	Prepare(ctx context.Context, owner cart.Owner) (*checkout.Prepared, error)
	Place(ctx context.Context, input checkout.PlaceInput) (*checkout.Placed, error)
	ClearCart(ctx context.Context, owner cart.Owner) *cart.Cart
}

type orderWriter interface {
	WriteTx(ctx context.Context, tx *gorm.DB, draft checkout.Draft, terms *checkout.PaymentTerms, settle checkout.SettleFunc) (*models.Order, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type paymentMetrics interface {
	IncOrderPlaced(method string)
	IncPaymentOutcome(gateway, outcome string)
}

// Service runs checkout submissions through the selected gateway and settles redirect
// callbacks exactly once.
type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error)
	Capture(ctx context.Context, gateway enums.PaymentMethod, token, payerID string) (*CaptureOutcome, error)
	Cancel(ctx context.Context, gateway enums.PaymentMethod, token string) string
}

// CheckoutInput is a submitted checkout form.
type CheckoutInput struct {
	Owner          cart.Owner
	Shipping       checkout.ShippingDetails
	Method         enums.PaymentMethod
	SourceID       string
	IdempotencyKey string
}

// CheckoutResult holds either the written order or the gateway redirect.
type CheckoutResult struct {
	Order       *models.Order
	Cart        *cart.Cart
	RedirectURL string
	Token       string
}

// CaptureOutcome is the state of a parked checkout after a return callback. OrderID is
// set once the checkout completed, including on replays.
type CaptureOutcome struct {
	Token    string
	Status   enums.PendingCheckoutStatus
	OrderID  *uuid.UUID
	Notice   string
	Replayed bool
	Cart     *cart.Cart
}

// Config holds the payment service dependencies.
type Config struct {
	Checkout checkoutFlow
	Writer   orderWriter
	Pending  PendingRepository
	Tx       txRunner
	Outbox   outboxPublisher
	Gateways []Gateway
	Payments config.PaymentsConfig
	Metrics  paymentMetrics
	Logger   *logger.Logger
}

type service struct {
	checkout checkoutFlow
	writer   orderWriter
	pending  PendingRepository
	tx       txRunner
	outbox   outboxPublisher
	gateways map[enums.PaymentMethod]Gateway
	payments config.PaymentsConfig
	rate     money.Rate
	metrics  paymentMetrics
	logg     *logger.Logger
}

func NewService(cfg Config) (Service, error) {
	if cfg.Checkout == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	if cfg.Writer == nil {
		return nil, fmt.Errorf("order writer required")
	}
	if cfg.Pending == nil {
		return nil, fmt.Errorf("pending checkout repository required")
	}
	if cfg.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if cfg.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if len(cfg.Gateways) == 0 {
		return nil, fmt.Errorf("at least one gateway required")
	}
	if _, err := enums.ParseCurrency(cfg.Payments.BaseCurrency); err != nil {
		return nil, fmt.Errorf("base currency: %w", err)
	}
	if _, err := enums.ParseCurrency(cfg.Payments.SettlementCurrency); err != nil {
		return nil, fmt.Errorf("settlement currency: %w", err)
	}
	rate, err := money.ParseRate(cfg.Payments.ConversionRate)
	if err != nil {
		return nil, err
	}
	gateways := make(map[enums.PaymentMethod]Gateway, len(cfg.Gateways))
	for _, gw := range cfg.Gateways {
		if gw == nil {
			continue
		}
		gateways[gw.Method()] = gw
	}
	return &service{
		checkout: cfg.Checkout,
		writer:   cfg.Writer,
		pending:  cfg.Pending,
		tx:       cfg.Tx,
		outbox:   cfg.Outbox,
		gateways: gateways,
		payments: cfg.Payments,
		rate:     rate,
		metrics:  cfg.Metrics,
		logg:     cfg.Logger,
	}, nil
}

// Checkout writes the order for synchronous methods and parks redirect checkouts.
func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	gw, err := s.gateway(input.Method)
	if err != nil {
		return nil, err
	}
	shipping := input.Shipping.Normalize()
	if err := shipping.Validate(); err != nil {
		return nil, err
	}
	requestID := strings.TrimSpace(input.IdempotencyKey)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	if input.Method.IsRedirect() {
		return s.startRedirect(ctx, gw, input.Owner, shipping, requestID)
	}

	placed, err := s.checkout.Place(ctx, checkout.PlaceInput{
		Owner:    input.Owner,
		Shipping: shipping,
		Method:   input.Method,
		Settle:   s.chargeInline(gw, requestID, input.SourceID, shipping.Email),
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodePaymentFailed) {
			s.recordOutcome(input.Method, enums.PaymentStatusDeclined.String())
		}
		return nil, err
	}
	s.recordPlaced(placed.Order)
	return &CheckoutResult{Order: placed.Order, Cart: placed.Cart}, nil
}

// chargeInline authorizes inside the order transaction. A pending authorization leaves
// the payment pending; anything short of completed rolls the order back.
func (s *service) chargeInline(gw Gateway, requestID, sourceID, email string) checkout.SettleFunc {
	return func(ctx context.Context, order *models.Order) (*checkout.Settlement, error) {
		settlement := s.rate.Convert(order.Total)
		auth, err := gw.Authorize(ctx, AuthorizeRequest{
			OrderID:            order.ID,
			RequestID:          requestID,
			Amount:             order.Total,
			Currency:           s.payments.BaseCurrency,
			SettlementCurrency: s.payments.SettlementCurrency,
			SettlementAmount:   money.FormatSettlement(settlement),
			SourceID:           sourceID,
			BuyerEmail:         email,
		})
		if err != nil {
			return nil, asPaymentFailure(err, "payment failed")
		}
		switch auth.Status {
		case enums.PaymentStatusPending:
			return nil, nil
		case enums.PaymentStatusCompleted:
			return &checkout.Settlement{
				GatewayReference:   auth.GatewayReference,
				SettlementCurrency: s.payments.SettlementCurrency,
				SettlementAmount:   money.FormatSettlement(settlement),
				PaidAt:             time.Now().UTC(),
			}, nil
		default:
			return nil, pkgerrors.New(pkgerrors.CodePaymentFailed, "payment was declined").
				WithDetails(map[string]any{"status": auth.Status})
		}
	}
}

func (s *service) startRedirect(ctx context.Context, gw Gateway, owner cart.Owner, shipping checkout.ShippingDetails, requestID string) (*CheckoutResult, error) {
	prepared, err := s.checkout.Prepare(ctx, owner)
	if err != nil {
		return nil, err
	}
	total := prepared.Totals.Total
	settlement := money.FormatSettlement(s.rate.Convert(total))
	method := gw.Method().String()

	auth, err := gw.Authorize(ctx, AuthorizeRequest{
		RequestID:          requestID,
		Amount:             total,
		Currency:           s.payments.BaseCurrency,
		SettlementCurrency: s.payments.SettlementCurrency,
		SettlementAmount:   settlement,
		BuyerEmail:         shipping.Email,
		ReturnURL:          s.payments.CallbackURL(method, "return"),
		CancelURL:          s.payments.CallbackURL(method, "cancel"),
	})
	if err != nil {
		return nil, err
	}
	if auth.RedirectURL == "" || auth.Token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway returned no redirect")
	}

	snapshot, err := json.Marshal(shipping)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode shipping details")
	}
	row := &models.PendingCheckout{
		Token:              auth.Token,
		Gateway:            gw.Method(),
		RemoteID:           auth.RemoteID,
		UserID:             owner.UserIDPtr(),
		Shipping:           snapshot,
		Amount:             total,
		SettlementCurrency: s.payments.SettlementCurrency,
		SettlementAmount:   settlement,
		Status:             enums.PendingCheckoutPending,
	}
	if !owner.Authenticated() && owner.Token != "" {
		token := owner.Token
		row.CartToken = &token
	}
	// A retried submission can get the same gateway order back; its row is already parked.
	msg := "redirect checkout parked"
	if err := s.pending.Create(ctx, row); errors.Is(err, ErrCheckoutParked) {
		msg = "redirect checkout already parked"
	} else if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checkout failed")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"gateway":           method,
			"token":             auth.Token,
			"amount":            total,
			"settlement_amount": settlement,
		})
		s.logg.Info(logCtx, msg)
	}
	return &CheckoutResult{RedirectURL: auth.RedirectURL, Token: auth.Token}, nil
}

// Capture settles a parked checkout. Terminal rows replay their recorded outcome, so a
// repeated callback never writes a second order.
func (s *service) Capture(ctx context.Context, method enums.PaymentMethod, token, payerID string) (*CaptureOutcome, error) {
	gw, err := s.gateway(method)
	if err != nil {
		return nil, err
	}
	if !method.IsRedirect() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, method.String()+" has no redirect callback")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "token is required")
	}

	row, err := s.pending.Find(ctx, method, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout")
	}
	if row.Status.IsTerminal() {
		return replay(row), nil
	}

	owner := ownerOf(row)
	var shipping checkout.ShippingDetails
	if err := json.Unmarshal(row.Shipping, &shipping); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode shipping details")
	}
	prepared, err := s.checkout.Prepare(ctx, owner)
	if err != nil {
		return s.abandon(ctx, row, NoticeFailed, err)
	}
	if prepared.Totals.Total != row.Amount {
		changed := pkgerrors.New(pkgerrors.CodePaymentFailed, "cart total changed during payment").
			WithDetails(map[string]any{"expected": row.Amount, "actual": prepared.Totals.Total})
		return s.abandon(ctx, row, NoticeCartChanged, changed)
	}

	terms := &checkout.PaymentTerms{
		SettlementCurrency: row.SettlementCurrency,
		SettlementAmount:   row.SettlementAmount,
	}
	var (
		order    *models.Order
		replayed *CaptureOutcome
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		pending := s.pending.WithTx(tx)
		locked, err := pending.Lock(ctx, method, token)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock checkout")
		}
		if locked.Status.IsTerminal() {
			replayed = replay(locked)
			return nil
		}

		written, err := s.writer.WriteTx(ctx, tx, prepared.Draft(shipping, method), terms, s.captureInline(gw, locked, payerID))
		if err != nil {
			return err
		}
		if _, err := pending.MarkCompleted(ctx, token, written.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checkout failed")
		}
		payment := written.Payments[0]
		event := outbox.DomainEvent{
			EventType:     enums.EventPaymentCaptured,
			AggregateType: enums.AggregateOrder,
			AggregateID:   written.ID,
			Actor:         outbox.ActorFor(written.UserID),
			Data: payloads.PaymentCapturedEvent{
				OrderID:            written.ID,
				Gateway:            method,
				GatewayReference:   deref(payment.GatewayReference),
				Amount:             payment.Amount,
				SettlementAmount:   deref(payment.SettlementAmount),
				SettlementCurrency: deref(payment.SettlementCurrency),
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checkout failed")
		}
		order = written
		return nil
	})
	if replayed != nil {
		return replayed, nil
	}
	if err != nil {
		if settledFailure(err) {
			return s.abandon(ctx, row, NoticeFailed, err)
		}
		return nil, err
	}

	s.recordPlaced(order)
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"gateway":  method.String(),
			"token":    token,
			"order_id": order.ID.String(),
		})
		s.logg.Info(logCtx, "redirect checkout captured")
	}
	orderID := order.ID
	return &CaptureOutcome{
		Token:   token,
		Status:  enums.PendingCheckoutCompleted,
		OrderID: &orderID,
		Cart:    s.checkout.ClearCart(ctx, owner),
	}, nil
}

func (s *service) captureInline(gw Gateway, row *models.PendingCheckout, payerID string) checkout.SettleFunc {
	return func(ctx context.Context, order *models.Order) (*checkout.Settlement, error) {
		result, err := gw.Capture(ctx, CaptureRequest{
			OrderID:   order.ID,
			RemoteID:  row.RemoteID,
			PayerID:   payerID,
			RequestID: "capture-" + row.Token,
		})
		if err != nil {
			return nil, asPaymentFailure(err, "payment capture failed")
		}
		if result.Status != enums.PaymentStatusCompleted {
			return nil, pkgerrors.New(pkgerrors.CodePaymentFailed, "payment was not completed").
				WithDetails(map[string]any{"status": result.Status})
		}
		settlement := &checkout.Settlement{
			GatewayReference:   result.GatewayReference,
			SettlementCurrency: row.SettlementCurrency,
			SettlementAmount:   row.SettlementAmount,
			PaidAt:             result.CapturedAt,
		}
		if result.SettlementAmount != "" {
			settlement.SettlementCurrency = result.SettlementCurrency
			settlement.SettlementAmount = result.SettlementAmount
		}
		return settlement, nil
	}
}

// Cancel records that the buyer backed out of the gateway. The cart is untouched and
// the result is always a notice for the checkout page.
func (s *service) Cancel(ctx context.Context, method enums.PaymentMethod, token string) string {
	token = strings.TrimSpace(token)
	row, err := s.pending.Find(ctx, method, token)
	if err != nil {
		s.warn(ctx, "cancel for unknown checkout", err)
		return NoticeCancelled
	}
	if row.Status != enums.PendingCheckoutPending {
		return replay(row).Notice
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.pending.WithTx(tx).MarkCancelled(ctx, token)
		if err != nil || !moved {
			return err
		}
		return s.emitAbandoned(ctx, tx, row, enums.PendingCheckoutCancelled, "cancelled by buyer")
	})
	if err != nil {
		s.warn(ctx, "cancel checkout not recorded", err)
	}
	s.recordOutcome(method, enums.PendingCheckoutCancelled.String())
	return NoticeCancelled
}

// abandon marks the row failed after the order transaction rolled back.
func (s *service) abandon(ctx context.Context, row *models.PendingCheckout, notice string, cause error) (*CaptureOutcome, error) {
	reason := cause.Error()
	if typed := pkgerrors.As(cause); typed != nil {
		reason = typed.Message()
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		moved, err := s.pending.WithTx(tx).MarkFailed(ctx, row.Token, reason)
		if err != nil || !moved {
			return err
		}
		return s.emitAbandoned(ctx, tx, row, enums.PendingCheckoutFailed, reason)
	})
	if err != nil {
		s.warn(ctx, "failed checkout not recorded", err)
	}
	s.recordOutcome(row.Gateway, enums.PaymentStatusFailed.String())
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"gateway": row.Gateway.String(),
			"token":   row.Token,
			"reason":  reason,
		})
		s.logg.Warn(logCtx, "redirect checkout failed")
	}
	return &CaptureOutcome{
		Token:  row.Token,
		Status: enums.PendingCheckoutFailed,
		Notice: notice,
	}, cause
}

func (s *service) emitAbandoned(ctx context.Context, tx *gorm.DB, row *models.PendingCheckout, status enums.PendingCheckoutStatus, reason string) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentAbandoned,
		AggregateType: enums.AggregatePendingCheckout,
		AggregateID:   pendingAggregateID(row.Token),
		Actor:         outbox.ActorFor(row.UserID),
		Data: payloads.PaymentAbandonedEvent{
			Token:   row.Token,
			Gateway: row.Gateway,
			Status:  status,
			Reason:  reason,
		},
	})
}

func (s *service) gateway(method enums.PaymentMethod) (Gateway, error) {
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method").
			WithDetails(map[string]string{"paymentMethod": "is not supported"})
	}
	gw, ok := s.gateways[method]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method unavailable").
			WithDetails(map[string]string{"paymentMethod": "is not available"})
	}
	return gw, nil
}

func (s *service) recordPlaced(order *models.Order) {
	if s.metrics == nil || order == nil || len(order.Payments) == 0 {
		return
	}
	payment := order.Payments[0]
	s.metrics.IncOrderPlaced(payment.Method.String())
	s.metrics.IncPaymentOutcome(payment.Method.String(), payment.Status.String())
}

func (s *service) recordOutcome(method enums.PaymentMethod, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncPaymentOutcome(method.String(), outcome)
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil || err == nil {
		return
	}
	logCtx := s.logg.WithField(ctx, "error", err.Error())
	s.logg.Warn(logCtx, msg)
}

func replay(row *models.PendingCheckout) *CaptureOutcome {
	outcome := &CaptureOutcome{
		Token:    row.Token,
		Status:   row.Status,
		OrderID:  row.OrderID,
		Replayed: true,
	}
	switch row.Status {
	case enums.PendingCheckoutCompleted:
		outcome.Notice = NoticeCompleted
	case enums.PendingCheckoutFailed:
		outcome.Notice = NoticeFailed
	case enums.PendingCheckoutCancelled:
		outcome.Notice = NoticeCancelled
	}
	return outcome
}

// ownerOf rebuilds the cart owner that started the checkout.
func ownerOf(row *models.PendingCheckout) cart.Owner {
	if row.UserID != nil {
		return cart.UserOwner(*row.UserID)
	}
	if row.CartToken != nil {
		return cart.TokenOwner(*row.CartToken)
	}
	return cart.Owner{}
}

func pendingAggregateID(token string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("pending-checkout:"+token))
}

// asPaymentFailure keeps gateway outages retryable and input errors visible; every
// other gateway error becomes a payment failure.
func asPaymentFailure(err error, msg string) error {
	if pkgerrors.IsCode(err, pkgerrors.CodeDependency) || pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodePaymentFailed, err, msg)
}

// settledFailure reports whether a capture error is final for the parked checkout.
// Internal and dependency errors leave it open so the callback can be retried.
func settledFailure(err error) bool {
	for _, code := range []pkgerrors.Code{
		pkgerrors.CodePaymentFailed,
		pkgerrors.CodeInsufficientStock,
		pkgerrors.CodeValidation,
		pkgerrors.CodeNotFound,
	} {
		if pkgerrors.IsCode(err, code) {
			return true
		}
	}
	return false
}
