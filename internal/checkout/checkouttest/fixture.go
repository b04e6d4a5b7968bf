// Package checkouttest wires the cart, catalog, order and outbox stack over an in-memory
// database for checkout and payment tests.
package checkouttest

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// Tiers are the default shipping bands.
var Tiers = checkout.ShippingTiers{
	ReducedThreshold: 500000,
	FreeThreshold:    1000000,
	StandardFee:      30000,
	ReducedFee:       15000,
}

// Options toggles fixture behavior.
type Options struct {
	DecrementStock bool
}

// Fixture is a fully wired checkout stack.
type Fixture struct {
	DB       *gorm.DB
	Client   *db.Client
	Catalog  *catalog.Repository
	Carts    cart.Service
	Tokens   *cart.TokenStore
	Orders   orders.Repository
	Outbox   *outbox.Store
	Writer   *checkout.Writer
	Checkout checkout.Service
}

func New(t *testing.T, opts Options) *Fixture {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.NewWithConn(conn)

	catalogRepo := catalog.NewRepository(conn)
	resolver, err := catalog.NewResolver(catalogRepo)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	server, err := cart.NewServerStore(conn, client)
	if err != nil {
		t.Fatalf("server store: %v", err)
	}
	tokens, err := cart.NewTokenStore(config.CartTokenConfig{Secret: "fixture-secret", Issuer: "storefront-cart", TTL: time.Hour}, nil)
	if err != nil {
		t.Fatalf("token store: %v", err)
	}
	carts, err := cart.NewService(server, tokens, resolver, nil, nil)
	if err != nil {
		t.Fatalf("cart service: %v", err)
	}

	ordersRepo := orders.NewRepository(conn)
	ordersSvc, err := orders.NewService(orders.ServiceConfig{
		Repo: ordersRepo,
		Tx:   client,
		Stock: func(tx *gorm.DB) orders.StockRestorer {
			return catalogRepo.WithTx(tx)
		},
		RestockOnCancel: opts.DecrementStock,
	})
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}
	outboxRepo := outbox.NewStore(conn)
	writer, err := checkout.NewWriter(checkout.WriterConfig{
		Orders: ordersRepo,
		Stock: func(tx *gorm.DB) checkout.StockDecrementer {
			return catalogRepo.WithTx(tx)
		},
		Outbox:         outbox.NewQueue(outboxRepo, nil),
		Currency:       "VND",
		DecrementStock: opts.DecrementStock,
	})
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	checkoutSvc, err := checkout.NewService(checkout.ServiceConfig{
		Carts:   carts,
		Prefill: ordersSvc,
		Writer:  writer,
		Tx:      client,
		Tiers:   Tiers,
	})
	if err != nil {
		t.Fatalf("checkout service: %v", err)
	}

	return &Fixture{
		DB:       conn,
		Client:   client,
		Catalog:  catalogRepo,
		Carts:    carts,
		Tokens:   tokens,
		Orders:   ordersRepo,
		Outbox:   outboxRepo,
		Writer:   writer,
		Checkout: checkoutSvc,
	}
}

// SeedProduct inserts a product without variants.
func (f *Fixture) SeedProduct(t *testing.T, name string, price int64, stock int) *models.Product {
	t.Helper()
	product := &models.Product{Name: name, Price: price, Stock: stock}
	if err := f.DB.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// SeedVariant inserts a variant; a nil price inherits the product price.
func (f *Fixture) SeedVariant(t *testing.T, product *models.Product, price *int64, stock int, size, color string) *models.ProductVariant {
	t.Helper()
	variant := &models.ProductVariant{ProductID: product.ID, Price: price, Stock: stock, Size: size, Color: color}
	if err := f.DB.Create(variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	return variant
}

// Count returns the row count of a model table.
func (f *Fixture) Count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	if err := f.DB.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// Events returns queued outbox event types in insertion order.
func (f *Fixture) Events(t *testing.T) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	if err := f.DB.Order("created_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("events: %v", err)
	}
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}

// Shipping returns a valid checkout form.
func Shipping() checkout.ShippingDetails {
	return checkout.ShippingDetails{
		FullName:    "Minh Tran",
		Email:       "minh@example.com",
		Phone:       "0912345678",
		AddressLine: "45 Le Loi",
		City:        "Da Nang",
	}
}
