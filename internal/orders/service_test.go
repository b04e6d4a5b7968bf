package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

func newTestService(t *testing.T) (Service, Repository) {
	t.Helper()
	repo := NewRepository(dbtest.Open(t))
	svc, err := NewService(ServiceConfig{Repo: repo})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, repo
}

func TestGetHidesOtherUsersOrders(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	owner := uuid.New()
	mine := seedOrder(t, repo, &owner, time.Now().UTC(), enums.OrderStatusPending)
	guest := seedOrder(t, repo, nil, time.Now().UTC(), enums.OrderStatusPending)

	detail, err := svc.Get(ctx, mine.ID, owner)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(detail.Items) != 2 || detail.Payment == nil || detail.Payment.Status != enums.PaymentStatusPending {
		t.Fatalf("unexpected detail %+v", detail)
	}
	if detail.Shipping.City != "Hanoi" {
		t.Fatalf("expected shipping snapshot, got %+v", detail.Shipping)
	}

	if _, err := svc.Get(ctx, mine.ID, uuid.New()); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for another user, got %v", err)
	}
	if _, err := svc.Get(ctx, guest.ID, uuid.Nil); err != nil {
		t.Fatalf("guest order must be readable by id: %v", err)
	}
}

func TestLatestShipping(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	user := uuid.New()

	snapshot, err := svc.LatestShipping(ctx, user)
	if err != nil || snapshot != nil {
		t.Fatalf("expected no prefill, got %+v %v", snapshot, err)
	}
	seedOrder(t, repo, &user, time.Now().UTC(), enums.OrderStatusConfirmed)
	snapshot, err = svc.LatestShipping(ctx, user)
	if err != nil || snapshot == nil || snapshot.FullName != "Lan Pham" {
		t.Fatalf("expected prefill, got %+v %v", snapshot, err)
	}
	if snapshot, _ := svc.LatestShipping(ctx, uuid.Nil); snapshot != nil {
		t.Fatal("anonymous owners get no prefill")
	}
}

func TestCancelOnlyPendingOwnOrders(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	pending := seedOrder(t, repo, &user, time.Now().UTC(), enums.OrderStatusPending)
	confirmed := seedOrder(t, repo, &user, time.Now().UTC(), enums.OrderStatusConfirmed)
	guest := seedOrder(t, repo, nil, time.Now().UTC(), enums.OrderStatusPending)

	detail, err := svc.Cancel(ctx, pending.ID, user)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if detail.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", detail.Status)
	}
	if _, err := svc.Cancel(ctx, pending.ID, user); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on second cancel, got %v", err)
	}
	if _, err := svc.Cancel(ctx, confirmed.ID, user); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict for confirmed order, got %v", err)
	}
	if _, err := svc.Cancel(ctx, guest.ID, user); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for guest order, got %v", err)
	}
}

func TestCancelRestocksOrderedQuantities(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	stock := catalog.NewRepository(conn)
	svc, err := NewService(ServiceConfig{
		Repo:            repo,
		Tx:              db.NewWithConn(conn),
		Stock:           func(tx *gorm.DB) StockRestorer { return stock.WithTx(tx) },
		RestockOnCancel: true,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	user := uuid.New()

	plain := &models.Product{Name: "Mug", Price: 100000, Stock: 4}
	sized := &models.Product{Name: "Tee", Price: 200000, Stock: 0}
	for _, p := range []*models.Product{plain, sized} {
		if err := conn.Create(p).Error; err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}
	variant := &models.ProductVariant{ProductID: sized.ID, Stock: 1, Size: "M"}
	if err := conn.Create(variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}

	order := &models.Order{UserID: &user, Status: enums.OrderStatusPending, Subtotal: 500000, Total: 500000, Currency: "VND", FullName: "Lan Pham", City: "Hanoi"}
	if err := repo.CreateOrder(ctx, order); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := repo.CreateItems(ctx, []models.OrderItem{
		{OrderID: order.ID, ProductID: plain.ID, ProductName: "Mug", Quantity: 1, UnitPrice: 100000, LineTotal: 100000},
		{OrderID: order.ID, ProductID: sized.ID, VariantID: &variant.ID, ProductName: "Tee", Size: "M", Quantity: 2, UnitPrice: 200000, LineTotal: 400000},
	}); err != nil {
		t.Fatalf("create items: %v", err)
	}

	if _, err := svc.Cancel(ctx, order.ID, user); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	var gotPlain models.Product
	var gotVariant models.ProductVariant
	if err := conn.First(&gotPlain, "id = ?", plain.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if err := conn.First(&gotVariant, "id = ?", variant.ID).Error; err != nil {
		t.Fatalf("reload variant: %v", err)
	}
	if gotPlain.Stock != 5 || gotVariant.Stock != 3 {
		t.Fatalf("expected stock 5/3 after cancel, got %d/%d", gotPlain.Stock, gotVariant.Stock)
	}

	if _, err := svc.Cancel(ctx, order.ID, user); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on second cancel, got %v", err)
	}
	if err := conn.First(&gotPlain, "id = ?", plain.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if gotPlain.Stock != 5 {
		t.Fatalf("a rejected cancel must not restock again, got %d", gotPlain.Stock)
	}
}

func TestNewServiceRequiresRestockDeps(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	if _, err := NewService(ServiceConfig{Repo: repo, RestockOnCancel: true}); err == nil {
		t.Fatal("expected error without tx runner and stock factory")
	}
}

func TestListRequiresUserAndValidCursor(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	user := uuid.New()
	seedOrder(t, repo, &user, time.Now().UTC(), enums.OrderStatusPending)

	if _, err := svc.List(ctx, uuid.Nil, pagination.Params{}); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := svc.List(ctx, user, pagination.Params{Cursor: "!!"}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	list, err := svc.List(ctx, user, pagination.Params{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Orders) != 1 || list.Orders[0].PaymentMethod != enums.PaymentMethodCOD {
		t.Fatalf("unexpected list %+v", list)
	}
}
