package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Service exposes read access to placed orders for the shopper who placed them.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID, viewer uuid.UUID) (*OrderDetail, error)
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	LatestShipping(ctx context.Context, userID uuid.UUID) (*ShippingSnapshot, error)
	Cancel(ctx context.Context, orderID uuid.UUID, userID uuid.UUID) (*OrderDetail, error)
}

// StockRestorer puts cancelled quantities back on the shelf.
type StockRestorer interface {
	IncrementStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, qty int) error
}

// StockFactory binds a stock restorer to the cancel transaction.
type StockFactory func(tx *gorm.DB) StockRestorer

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceConfig wires the orders service. Tx and Stock are required when
// RestockOnCancel is set, which should mirror whether checkout decrements stock.
type ServiceConfig struct {
	Repo            Repository
	Tx              txRunner
	Stock           StockFactory
	RestockOnCancel bool
}

type service struct {
	repo    Repository
	tx      txRunner
	stock   StockFactory
	restock bool
}

func NewService(cfg ServiceConfig) (Service, error) {
	if cfg.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if cfg.RestockOnCancel && (cfg.Tx == nil || cfg.Stock == nil) {
		return nil, fmt.Errorf("tx runner and stock factory required to restock on cancel")
	}
	return &service{repo: cfg.Repo, tx: cfg.Tx, stock: cfg.Stock, restock: cfg.RestockOnCancel}, nil
}

// Get returns the order. Orders placed by a signed-in user are only visible to that
// user; guest orders are addressed by their unguessable id alone.
func (s *service) Get(ctx context.Context, orderID uuid.UUID, viewer uuid.UUID) (*OrderDetail, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order.UserID != nil && *order.UserID != viewer {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return detailFromModel(order), nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to list orders")
	}
	rows, next, err := s.repo.ListForUser(ctx, userID, params)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	out := &OrderList{Orders: make([]OrderSummary, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		out.Orders = append(out.Orders, summaryFromModel(row))
	}
	return out, nil
}

// LatestShipping returns the shipping block of the user's last order, or nil.
func (s *service) LatestShipping(ctx context.Context, userID uuid.UUID) (*ShippingSnapshot, error) {
	if userID == uuid.Nil {
		return nil, nil
	}
	order, err := s.repo.LatestForUser(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load latest order")
	}
	snapshot := SnapshotOf(order)
	return &snapshot, nil
}

// Cancel withdraws a still-pending order placed by userID.
func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, userID uuid.UUID) (*OrderDetail, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to cancel orders")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && (order.UserID == nil || *order.UserID != userID)) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if !order.Status.CanTransitionTo(enums.OrderStatusCancelled) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
			WithDetails(map[string]any{"status": order.Status})
	}
	if s.restock {
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.cancelWith(ctx, s.repo.WithTx(tx), s.stock(tx), order)
		})
	} else {
		err = s.cancelWith(ctx, s.repo, nil, order)
	}
	if err != nil {
		return nil, err
	}
	order.Status = enums.OrderStatusCancelled
	return detailFromModel(order), nil
}

// cancelWith flips the status under a from-guard and, given a restorer, returns every
// item's quantity to stock. Only the caller that wins the guard restocks.
func (s *service) cancelWith(ctx context.Context, repo Repository, stock StockRestorer, order *models.Order) error {
	moved, err := repo.UpdateStatus(ctx, order.ID, order.Status, enums.OrderStatusCancelled)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order")
	}
	if !moved {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
	}
	if stock == nil {
		return nil
	}
	for _, item := range order.Items {
		if err := stock.IncrementStock(ctx, item.ProductID, item.VariantID, item.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restock cancelled order")
		}
	}
	return nil
}
