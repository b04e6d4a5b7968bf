package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func seedProduct(t *testing.T, db *gorm.DB, price int64, stock int) *models.Product {
	t.Helper()
	product := &models.Product{Name: "Linen Shirt", Price: price, Stock: stock}
	require.NoError(t, db.Create(product).Error)
	return product
}

func seedVariant(t *testing.T, db *gorm.DB, productID uuid.UUID, position int, price *int64, stock int, size, color string) *models.ProductVariant {
	t.Helper()
	variant := &models.ProductVariant{ProductID: productID, Position: position, Price: price, Stock: stock, Size: size, Color: color}
	require.NoError(t, db.Create(variant).Error)
	return variant
}

func newTestResolver(t *testing.T, db *gorm.DB) Resolver {
	t.Helper()
	r, err := NewResolver(NewRepository(db))
	require.NoError(t, err)
	return r
}

func TestResolveProductWithoutVariant(t *testing.T) {
	db := dbtest.Open(t)
	product := seedProduct(t, db, 250000, 7)

	res, err := newTestResolver(t, db).Resolve(context.Background(), product.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(250000), res.UnitPrice)
	assert.Equal(t, 7, res.AvailableStock)
	assert.Nil(t, res.VariantID)
	assert.Equal(t, "Linen Shirt", res.ProductName)
}

func TestResolveVariantOverrideAndFallback(t *testing.T) {
	db := dbtest.Open(t)
	product := seedProduct(t, db, 250000, 0)
	override := int64(270000)
	priced := seedVariant(t, db, product.ID, 0, &override, 3, "L", "Navy")
	inherit := seedVariant(t, db, product.ID, 1, nil, 5, "M", "White")
	r := newTestResolver(t, db)

	res, err := r.Resolve(context.Background(), product.ID, &priced.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(270000), res.UnitPrice)
	assert.Equal(t, 3, res.AvailableStock)
	assert.Equal(t, "L", res.Size)
	assert.Equal(t, "Navy", res.Color)

	res, err = r.Resolve(context.Background(), product.ID, &inherit.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250000), res.UnitPrice)
	assert.Equal(t, 5, res.AvailableStock)
}

func TestResolveForeignVariantIsNotFound(t *testing.T) {
	db := dbtest.Open(t)
	product := seedProduct(t, db, 100, 1)
	other := seedProduct(t, db, 200, 1)
	foreign := seedVariant(t, db, other.ID, 0, nil, 1, "S", "Red")

	_, err := newTestResolver(t, db).Resolve(context.Background(), product.ID, &foreign.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestResolveSoftDeletedProductIsNotFound(t *testing.T) {
	db := dbtest.Open(t)
	product := seedProduct(t, db, 100, 1)
	require.NoError(t, db.Delete(product).Error)

	_, err := newTestResolver(t, db).Resolve(context.Background(), product.ID, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = newTestResolver(t, db).Resolve(context.Background(), uuid.New(), nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestResolveForAddPicksFirstVariantInStorageOrder(t *testing.T) {
	db := dbtest.Open(t)
	product := seedProduct(t, db, 100, 0)
	second := seedVariant(t, db, product.ID, 2, nil, 1, "XL", "Black")
	first := seedVariant(t, db, product.ID, 1, nil, 4, "S", "Black")
	_ = second

	res, err := newTestResolver(t, db).ResolveForAdd(context.Background(), product.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, res.VariantID)
	assert.Equal(t, first.ID, *res.VariantID)
	assert.Equal(t, 4, res.AvailableStock)
}

func TestResolveForAddTieBreaksOnCreatedAt(t *testing.T) {
	db := dbtest.Open(t)
	product := seedProduct(t, db, 100, 0)
	older := &models.ProductVariant{ProductID: product.ID, Position: 0, Stock: 1, Size: "A", CreatedAt: time.Now().Add(-time.Hour)}
	newer := &models.ProductVariant{ProductID: product.ID, Position: 0, Stock: 1, Size: "B", CreatedAt: time.Now()}
	require.NoError(t, db.Create(newer).Error)
	require.NoError(t, db.Create(older).Error)

	res, err := newTestResolver(t, db).ResolveForAdd(context.Background(), product.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "A", res.Size)
}

func TestResolveForAddWithoutVariantsUsesProduct(t *testing.T) {
	db := dbtest.Open(t)
	product := seedProduct(t, db, 990, 12)

	res, err := newTestResolver(t, db).ResolveForAdd(context.Background(), product.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, res.VariantID)
	assert.Equal(t, 12, res.AvailableStock)
}

func TestDecrementStockGuard(t *testing.T) {
	db := dbtest.Open(t)
	product := seedProduct(t, db, 100, 3)
	variant := seedVariant(t, db, product.ID, 0, nil, 2, "M", "Blue")
	repo := NewRepository(db)
	ctx := context.Background()

	ok, err := repo.DecrementStock(ctx, product.ID, nil, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.DecrementStock(ctx, product.ID, nil, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.DecrementStock(ctx, product.ID, &variant.ID, 3)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = repo.DecrementStock(ctx, product.ID, &variant.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err := repo.FindVariant(ctx, product.ID, variant.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Stock)
}
