package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubResolver struct {
	products map[uuid.UUID]catalog.Resolution
	variants map[uuid.UUID]catalog.Resolution
	first    map[uuid.UUID]uuid.UUID
}

func newStubResolver() *stubResolver {
	return &stubResolver{
		products: map[uuid.UUID]catalog.Resolution{},
		variants: map[uuid.UUID]catalog.Resolution{},
		first:    map[uuid.UUID]uuid.UUID{},
	}
}

func (s *stubResolver) addProduct(name string, price int64, stock int) uuid.UUID {
	id := uuid.New()
	s.products[id] = catalog.Resolution{ProductID: id, ProductName: name, UnitPrice: price, AvailableStock: stock}
	return id
}

func (s *stubResolver) addVariant(productID uuid.UUID, size, color string, price int64, stock int) uuid.UUID {
	id := uuid.New()
	vid := id
	s.variants[id] = catalog.Resolution{
		ProductID:      productID,
		VariantID:      &vid,
		ProductName:    s.products[productID].ProductName,
		Size:           size,
		Color:          color,
		UnitPrice:      price,
		AvailableStock: stock,
	}
	if _, ok := s.first[productID]; !ok {
		s.first[productID] = id
	}
	return id
}

func (s *stubResolver) Resolve(_ context.Context, productID uuid.UUID, variantID *uuid.UUID) (*catalog.Resolution, error) {
	if _, ok := s.products[productID]; !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if variantID == nil {
		res := s.products[productID]
		return &res, nil
	}
	res, ok := s.variants[*variantID]
	if !ok || res.ProductID != productID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}
	return &res, nil
}

func (s *stubResolver) ResolveForAdd(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*catalog.Resolution, error) {
	if variantID == nil {
		if first, ok := s.first[productID]; ok {
			return s.Resolve(ctx, productID, &first)
		}
	}
	return s.Resolve(ctx, productID, variantID)
}

type recordingMetrics struct {
	ops []string
}

func (m *recordingMetrics) IncCartMutation(op string, _ bool) {
	m.ops = append(m.ops, op)
}

func newTestService(t *testing.T, resolver *stubResolver) (Service, *recordingMetrics) {
	t.Helper()
	metrics := &recordingMetrics{}
	svc, err := NewService(newMemoryStore(), newTokenStore(t), resolver, metrics, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, metrics
}

// memoryStore stands in for the server store in service tests.
type memoryStore struct {
	carts map[uuid.UUID]Lines
}

func newMemoryStore() *memoryStore {
	return &memoryStore{carts: map[uuid.UUID]Lines{}}
}

func (m *memoryStore) Load(_ context.Context, owner Owner) (*Cart, error) {
	lines := m.carts[owner.UserID]
	return &Cart{Lines: lines.Clone()}, nil
}

func (m *memoryStore) Mutate(_ context.Context, owner Owner, fn func(*Lines) error) (*Cart, error) {
	current := m.carts[owner.UserID]
	lines := current.Clone()
	if err := fn(&lines); err != nil {
		return nil, err
	}
	m.carts[owner.UserID] = lines
	return &Cart{Lines: lines.Clone()}, nil
}

func (m *memoryStore) Clear(_ context.Context, owner Owner) (*Cart, error) {
	delete(m.carts, owner.UserID)
	return &Cart{}, nil
}

func TestAddMergesForBothOwnerKinds(t *testing.T) {
	resolver := newStubResolver()
	product := resolver.addProduct("Tee", 100000, 10)
	svc, metrics := newTestService(t, resolver)
	ctx := context.Background()

	user := UserOwner(uuid.New())
	if _, err := svc.Add(ctx, user, product, nil, 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	cart, err := svc.Add(ctx, user, product, nil, 3)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 5 {
		t.Fatalf("expected one line with 5, got %+v", cart.Items)
	}

	anon := TokenOwner("")
	cart, err = svc.Add(ctx, anon, product, nil, 2)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	cart, err = svc.Add(ctx, TokenOwner(cart.Token), product, nil, 3)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 5 || cart.Token == "" {
		t.Fatalf("expected anonymous merged line, got %+v", cart)
	}
	if len(metrics.ops) != 4 {
		t.Fatalf("expected 4 recorded mutations, got %v", metrics.ops)
	}
}

func TestAddDefaultsToFirstVariant(t *testing.T) {
	resolver := newStubResolver()
	product := resolver.addProduct("Hoodie", 300000, 0)
	first := resolver.addVariant(product, "M", "black", 320000, 5)
	resolver.addVariant(product, "L", "black", 330000, 5)
	svc, _ := newTestService(t, resolver)

	cart, err := svc.Add(context.Background(), TokenOwner(""), product, nil, 1)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if cart.Items[0].VariantID == nil || *cart.Items[0].VariantID != first {
		t.Fatalf("expected first variant to be chosen, got %+v", cart.Items[0])
	}
}

func TestKeyWithoutVariantAddressesDefaultedLine(t *testing.T) {
	resolver := newStubResolver()
	product := resolver.addProduct("Hoodie", 300000, 0)
	first := resolver.addVariant(product, "M", "black", 320000, 5)
	second := resolver.addVariant(product, "L", "black", 330000, 5)
	svc, _ := newTestService(t, resolver)
	ctx := context.Background()
	owner := UserOwner(uuid.New())

	if _, err := svc.Add(ctx, owner, product, nil, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.Add(ctx, owner, product, &second, 1); err != nil {
		t.Fatalf("add second variant: %v", err)
	}

	cart, err := svc.SetQuantity(ctx, owner, ByKey(product, nil), 3)
	if err != nil {
		t.Fatalf("set quantity by product key: %v", err)
	}
	for _, item := range cart.Items {
		want := 1
		if *item.VariantID == first {
			want = 3
		}
		if item.Quantity != want {
			t.Fatalf("unexpected quantity on %+v", item)
		}
	}
	if _, err := svc.SetQuantity(ctx, owner, ByKey(product, nil), 6); !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected first variant stock to apply, got %v", err)
	}

	cart, err = svc.Remove(ctx, owner, ByKey(product, nil))
	if err != nil {
		t.Fatalf("remove by product key: %v", err)
	}
	if len(cart.Items) != 1 || *cart.Items[0].VariantID != second {
		t.Fatalf("expected only the second variant left, got %+v", cart.Items)
	}
	if _, err := svc.Remove(ctx, owner, ByKey(product, nil)); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found once the defaulted line is gone, got %v", err)
	}
	if _, err := svc.Remove(ctx, owner, ByKey(uuid.New(), nil)); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for unknown product, got %v", err)
	}
}

func TestAddChecksMergedQuantityAgainstStock(t *testing.T) {
	resolver := newStubResolver()
	product := resolver.addProduct("Cap", 50000, 4)
	svc, _ := newTestService(t, resolver)
	ctx := context.Background()
	owner := UserOwner(uuid.New())

	if _, err := svc.Add(ctx, owner, product, nil, 3); err != nil {
		t.Fatalf("add: %v", err)
	}
	_, err := svc.Add(ctx, owner, product, nil, 2)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok || details["requested"] != 5 || details["available"] != 4 {
		t.Fatalf("unexpected details %#v", typed.Details())
	}

	cart, _ := svc.List(ctx, owner)
	if cart.Items[0].Quantity != 3 {
		t.Fatalf("failed add must not change the cart, got %d", cart.Items[0].Quantity)
	}
}

func TestAddRejectsInvalidInput(t *testing.T) {
	resolver := newStubResolver()
	product := resolver.addProduct("Sock", 10000, 4)
	svc, _ := newTestService(t, resolver)
	ctx := context.Background()

	if _, err := svc.Add(ctx, TokenOwner(""), product, nil, 0); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Add(ctx, TokenOwner(""), uuid.New(), nil, 1); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	foreign := uuid.New()
	if _, err := svc.Add(ctx, TokenOwner(""), product, &foreign, 1); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for foreign variant, got %v", err)
	}
}

func TestSetQuantityByKeyChecksStock(t *testing.T) {
	resolver := newStubResolver()
	product := resolver.addProduct("Bag", 200000, 0)
	variant := resolver.addVariant(product, "", "red", 210000, 3)
	svc, _ := newTestService(t, resolver)
	ctx := context.Background()
	owner := UserOwner(uuid.New())

	if _, err := svc.Add(ctx, owner, product, &variant, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	cart, err := svc.SetQuantity(ctx, owner, ByKey(product, &variant), 3)
	if err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if cart.Items[0].Quantity != 3 {
		t.Fatalf("expected 3, got %d", cart.Items[0].Quantity)
	}
	if _, err := svc.SetQuantity(ctx, owner, ByKey(product, &variant), 4); !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if _, err := svc.SetQuantity(ctx, owner, ByKey(product, nil), 1); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.SetQuantity(ctx, owner, ByKey(product, &variant), -1); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReassignVariantMergesAndReturnsResolution(t *testing.T) {
	resolver := newStubResolver()
	product := resolver.addProduct("Jacket", 500000, 0)
	small := resolver.addVariant(product, "S", "green", 500000, 10)
	large := resolver.addVariant(product, "L", "blue", 550000, 10)
	svc, _ := newTestService(t, resolver)
	ctx := context.Background()
	owner := UserOwner(uuid.New())

	_, _ = svc.Add(ctx, owner, product, &small, 2)
	cart, _ := svc.Add(ctx, owner, product, &large, 3)
	smallLine, _ := cart.Get(ByKey(product, &small))
	largeLine, _ := cart.Get(ByKey(product, &large))

	cart, resolved, err := svc.ReassignVariant(ctx, owner, smallLine.ID, product, large)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].ID != largeLine.ID || cart.Items[0].Quantity != 5 {
		t.Fatalf("unexpected merged cart %+v", cart.Items)
	}
	if resolved.Size != "L" || resolved.Color != "blue" || resolved.UnitPrice != 550000 {
		t.Fatalf("unexpected resolution %+v", resolved)
	}
}

func TestReassignVariantValidatesOwnership(t *testing.T) {
	resolver := newStubResolver()
	product := resolver.addProduct("Jacket", 500000, 0)
	small := resolver.addVariant(product, "S", "green", 500000, 10)
	other := resolver.addProduct("Scarf", 90000, 0)
	otherVariant := resolver.addVariant(other, "", "grey", 90000, 10)
	tight := resolver.addVariant(product, "XS", "green", 500000, 1)
	svc, _ := newTestService(t, resolver)
	ctx := context.Background()
	owner := TokenOwner("")

	cart, _ := svc.Add(ctx, owner, product, &small, 2)
	owner = TokenOwner(cart.Token)
	lineID := cart.Items[0].ID

	if _, _, err := svc.ReassignVariant(ctx, owner, lineID, product, otherVariant); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for foreign variant, got %v", err)
	}
	if _, _, err := svc.ReassignVariant(ctx, owner, lineID, other, otherVariant); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for line of another product, got %v", err)
	}
	if _, _, err := svc.ReassignVariant(ctx, owner, lineID, product, tight); !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestPriceReResolvesAndSkipsUnavailable(t *testing.T) {
	resolver := newStubResolver()
	tee := resolver.addProduct("Tee", 100000, 10)
	mug := resolver.addProduct("Mug", 40000, 10)
	svc, _ := newTestService(t, resolver)
	ctx := context.Background()
	owner := UserOwner(uuid.New())

	_, _ = svc.Add(ctx, owner, tee, nil, 2)
	cart, _ := svc.Add(ctx, owner, mug, nil, 1)

	priced, err := svc.Price(ctx, cart)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if priced.Subtotal != 240000 || priced.Count != 3 {
		t.Fatalf("unexpected priced cart %+v", priced)
	}

	res := resolver.products[tee]
	res.UnitPrice = 120000
	resolver.products[tee] = res
	delete(resolver.products, mug)

	priced, err = svc.Price(ctx, cart)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if priced.Subtotal != 240000 || len(priced.Lines) != 1 || len(priced.Unavailable) != 1 {
		t.Fatalf("expected repriced tee and unavailable mug, got %+v", priced)
	}
	if priced.Lines[0].UnitPrice != 120000 || priced.Lines[0].LineTotal != 240000 {
		t.Fatalf("expected new price to apply, got %+v", priced.Lines[0])
	}
}

func TestRemoveAndClear(t *testing.T) {
	resolver := newStubResolver()
	tee := resolver.addProduct("Tee", 100000, 10)
	mug := resolver.addProduct("Mug", 40000, 10)
	svc, _ := newTestService(t, resolver)
	ctx := context.Background()
	owner := UserOwner(uuid.New())

	_, _ = svc.Add(ctx, owner, tee, nil, 1)
	_, _ = svc.Add(ctx, owner, mug, nil, 1)
	cart, err := svc.Remove(ctx, owner, ByKey(tee, nil))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].ProductID != mug {
		t.Fatalf("unexpected cart %+v", cart.Items)
	}
	if _, err := svc.Remove(ctx, owner, ByKey(tee, nil)); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Clear(ctx, owner); err != nil {
		t.Fatalf("clear: %v", err)
	}
	cart, _ = svc.List(ctx, owner)
	if !cart.Empty() {
		t.Fatalf("expected empty cart, got %+v", cart.Items)
	}
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	if _, err := NewService(nil, newMemoryStore(), newStubResolver(), nil, nil); err == nil {
		t.Fatal("expected server store error")
	}
	if _, err := NewService(newMemoryStore(), nil, newStubResolver(), nil, nil); err == nil {
		t.Fatal("expected token store error")
	}
	if _, err := NewService(newMemoryStore(), newMemoryStore(), nil, nil, nil); err == nil {
		t.Fatal("expected resolver error")
	}
}
