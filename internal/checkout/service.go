package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartReader interface {
	List(ctx context.Context, owner cart.Owner) (*cart.Cart, error)
	Price(ctx context.Context, c *cart.Cart) (*cart.Priced, error)
	Clear(ctx context.Context, owner cart.Owner) (*cart.Cart, error)
}

type shippingPrefill interface {
	LatestShipping(ctx context.Context, userID uuid.UUID) (*orders.ShippingSnapshot, error)
}

// Service prices the live cart for checkout and places synchronous orders.
type Service interface {
	Quote(ctx context.Context, owner cart.Owner) (*Quote, error)
	Prepare(ctx context.Context, owner cart.Owner) (*Prepared, error)
	Place(ctx context.Context, input PlaceInput) (*Placed, error)
	ClearCart(ctx context.Context, owner cart.Owner) *cart.Cart
}

// Quote is the checkout page model.
type Quote struct {
	Lines       []cart.PricedLine
	Unavailable []cart.Line
	Count       int
	Totals      Totals
	Prefill     *ShippingDetails
}

// Prepared is a live, fully priced, non-empty cart ready to be written.
type Prepared struct {
	Owner  cart.Owner
	Cart   *cart.Cart
	Lines  []cart.PricedLine
	Totals Totals
}

// Draft builds the writer input for the prepared cart.
func (p *Prepared) Draft(shipping ShippingDetails, method enums.PaymentMethod) Draft {
	return Draft{
		UserID:   p.Owner.UserIDPtr(),
		Shipping: shipping,
		Method:   method,
		Lines:    p.Lines,
		Totals:   p.Totals,
	}
}

// PlaceInput is a synchronous checkout submission. Settle is nil for methods that
// leave the payment pending.
type PlaceInput struct {
	Owner    cart.Owner
	Shipping ShippingDetails
	Method   enums.PaymentMethod
	Terms    *PaymentTerms
	Settle   SettleFunc
}

// Placed is the committed order plus the cart state after clearing.
type Placed struct {
	Order *models.Order
	Cart  *cart.Cart
}

type service struct {
	carts   cartReader
	prefill shippingPrefill
	writer  *Writer
	tx      txRunner
	tiers   ShippingTiers
	logg    *logger.Logger
}

// ServiceConfig holds the checkout service dependencies.
type ServiceConfig struct {
	Carts   cartReader
	Prefill shippingPrefill
	Writer  *Writer
	Tx      txRunner
	Tiers   ShippingTiers
	Logger  *logger.Logger
}

func NewService(cfg ServiceConfig) (Service, error) {
	if cfg.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if cfg.Prefill == nil {
		return nil, fmt.Errorf("shipping prefill required")
	}
	if cfg.Writer == nil {
		return nil, fmt.Errorf("order writer required")
	}
	if cfg.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if cfg.Tiers.FreeThreshold < cfg.Tiers.ReducedThreshold {
		return nil, fmt.Errorf("free shipping threshold below reduced threshold")
	}
	return &service{
		carts:   cfg.Carts,
		prefill: cfg.Prefill,
		writer:  cfg.Writer,
		tx:      cfg.Tx,
		tiers:   cfg.Tiers,
		logg:    cfg.Logger,
	}, nil
}

// Quote prices the live cart and prefills shipping from the owner's last order.
func (s *service) Quote(ctx context.Context, owner cart.Owner) (*Quote, error) {
	current, err := s.carts.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	priced, err := s.carts.Price(ctx, current)
	if err != nil {
		return nil, err
	}
	quote := &Quote{
		Lines:       priced.Lines,
		Unavailable: priced.Unavailable,
		Count:       priced.Count,
		Totals:      ComputeTotals(priced.Lines, s.tiers),
	}
	if owner.Authenticated() {
		snapshot, err := s.prefill.LatestShipping(ctx, owner.UserID)
		if err != nil {
			s.warn(ctx, "shipping prefill unavailable", err)
		} else if snapshot != nil {
			details := DetailsFromSnapshot(*snapshot)
			quote.Prefill = &details
		}
	}
	return quote, nil
}

// Prepare re-reads and re-prices the cart. Empty carts and carts holding lines that no
// longer resolve are rejected before anything is written.
func (s *service) Prepare(ctx context.Context, owner cart.Owner) (*Prepared, error) {
	current, err := s.carts.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	if current.Empty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	priced, err := s.carts.Price(ctx, current)
	if err != nil {
		return nil, err
	}
	if len(priced.Unavailable) > 0 {
		ids := make([]int64, 0, len(priced.Unavailable))
		for _, line := range priced.Unavailable {
			ids = append(ids, line.ID)
		}
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "some items are no longer available").
			WithDetails(map[string]any{"unavailableLineIds": ids})
	}
	return &Prepared{
		Owner:  owner,
		Cart:   current,
		Lines:  priced.Lines,
		Totals: ComputeTotals(priced.Lines, s.tiers),
	}, nil
}

// Place writes the order for a synchronous method and clears the cart after commit.
func (s *service) Place(ctx context.Context, input PlaceInput) (*Placed, error) {
	shipping := input.Shipping.Normalize()
	if err := shipping.Validate(); err != nil {
		return nil, err
	}
	if input.Method.IsRedirect() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "redirect payment methods settle through the gateway callback")
	}
	prepared, err := s.Prepare(ctx, input.Owner)
	if err != nil {
		return nil, err
	}

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		written, err := s.writer.WriteTx(ctx, tx, prepared.Draft(shipping, input.Method), input.Terms, input.Settle)
		if err != nil {
			return err
		}
		order = written
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID.String(),
			"method":   input.Method,
			"total":    order.Total,
		})
		s.logg.Info(logCtx, "order placed")
	}
	return &Placed{Order: order, Cart: s.ClearCart(ctx, input.Owner)}, nil
}

// ClearCart empties the owner's cart once the order has committed. It runs outside the
// order transaction, so a failure only leaves stale lines behind and is logged.
func (s *service) ClearCart(ctx context.Context, owner cart.Owner) *cart.Cart {
	cleared, err := s.carts.Clear(ctx, owner)
	if err != nil {
		s.warn(ctx, "cart clear after order failed", err)
		return nil
	}
	return cleared
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithField(ctx, "error", err.Error())
	s.logg.Warn(logCtx, msg)
}
