package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Resolution is the effective price and stock of a (product, variant) selection.
type Resolution struct {
	ProductID      uuid.UUID
	VariantID      *uuid.UUID
	ProductName    string
	Size           string
	Color          string
	UnitPrice      int64
	AvailableStock int
}

// Resolver is the single place unit prices are derived.
type Resolver interface {
	Resolve(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*Resolution, error)
	ResolveForAdd(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*Resolution, error)
}

type productReader interface {
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error)
	FirstVariant(ctx context.Context, productID uuid.UUID) (*models.ProductVariant, error)
}

type resolver struct {
	repo productReader
}

// NewResolver builds a resolver over the catalog repository.
func NewResolver(repo productReader) (Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("product reader required")
	}
	return &resolver{repo: repo}, nil
}

// Resolve returns the product's own price and stock when variantID is nil, otherwise
// the variant's stock and its price override (falling back to the product price).
func (r *resolver) Resolve(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*Resolution, error) {
	product, err := r.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if variantID == nil {
		return fromProduct(product), nil
	}
	variant, err := r.repo.FindVariant(ctx, productID, *variantID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variant")
	}
	return fromVariant(product, variant), nil
}

// ResolveForAdd behaves like Resolve but targets the first variant when the product
// has variants and none was chosen.
func (r *resolver) ResolveForAdd(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*Resolution, error) {
	if variantID != nil {
		return r.Resolve(ctx, productID, variantID)
	}
	product, err := r.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	first, err := r.repo.FirstVariant(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variants")
	}
	if first == nil {
		return fromProduct(product), nil
	}
	return fromVariant(product, first), nil
}

func (r *resolver) loadProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, err := r.repo.FindProduct(ctx, productID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	return product, nil
}

func fromProduct(product *models.Product) *Resolution {
	return &Resolution{
		ProductID:      product.ID,
		ProductName:    product.Name,
		UnitPrice:      product.Price,
		AvailableStock: product.Stock,
	}
}

func fromVariant(product *models.Product, variant *models.ProductVariant) *Resolution {
	price := product.Price
	if variant.Price != nil {
		price = *variant.Price
	}
	id := variant.ID
	return &Resolution{
		ProductID:      product.ID,
		VariantID:      &id,
		ProductName:    product.Name,
		Size:           variant.Size,
		Color:          variant.Color,
		UnitPrice:      price,
		AvailableStock: variant.Stock,
	}
}
