package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type mutationRecorder interface {
	IncCartMutation(operation string, authenticated bool)
}

// Service exposes the shopper-facing cart operations over both stores.
type Service interface {
	List(ctx context.Context, owner Owner) (*Cart, error)
	Add(ctx context.Context, owner Owner, productID uuid.UUID, variantID *uuid.UUID, qty int) (*Cart, error)
	SetQuantity(ctx context.Context, owner Owner, ref LineRef, qty int) (*Cart, error)
	Remove(ctx context.Context, owner Owner, ref LineRef) (*Cart, error)
	ReassignVariant(ctx context.Context, owner Owner, lineID int64, productID, variantID uuid.UUID) (*Cart, *catalog.Resolution, error)
	Clear(ctx context.Context, owner Owner) (*Cart, error)
	Price(ctx context.Context, cart *Cart) (*Priced, error)
}

// PricedLine is a cart line with its freshly resolved price.
type PricedLine struct {
	LineID    int64
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Name      string
	Size      string
	Color     string
	UnitPrice int64
	Quantity  int
	LineTotal int64
}

// Priced is the result of re-resolving every line. Lines whose product or variant no
// longer exists are excluded from the subtotal and reported in Unavailable.
type Priced struct {
	Lines       []PricedLine
	Unavailable []Line
	Subtotal    int64
	Count       int
}

type service struct {
	server   Store
	token    Store
	resolver catalog.Resolver
	metrics  mutationRecorder
	logg     *logger.Logger
}

// NewService wires the cart service. metrics and logg may be nil.
func NewService(server, token Store, resolver catalog.Resolver, metrics mutationRecorder, logg *logger.Logger) (Service, error) {
	if server == nil {
		return nil, fmt.Errorf("server store required")
	}
	if token == nil {
		return nil, fmt.Errorf("token store required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver required")
	}
	return &service{
		server:   server,
		token:    token,
		resolver: resolver,
		metrics:  metrics,
		logg:     logg,
	}, nil
}

func (s *service) storeFor(owner Owner) Store {
	if owner.Authenticated() {
		return s.server
	}
	return s.token
}

func (s *service) List(ctx context.Context, owner Owner) (*Cart, error) {
	return s.storeFor(owner).Load(ctx, owner)
}

// Add resolves the selection (defaulting to the first variant) and merges it into the cart.
func (s *service) Add(ctx context.Context, owner Owner, productID uuid.UUID, variantID *uuid.UUID, qty int) (*Cart, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "productId is required")
	}
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	resolved, err := s.resolver.ResolveForAdd(ctx, productID, variantID)
	if err != nil {
		return nil, err
	}
	cart, err := s.storeFor(owner).Mutate(ctx, owner, func(lines *Lines) error {
		line, err := lines.Add(resolved.ProductID, resolved.VariantID, qty)
		if err != nil {
			return err
		}
		return checkStock(line.Quantity, resolved)
	})
	if err != nil {
		return nil, err
	}
	s.recordMutation(ctx, "add", owner)
	return cart, nil
}

func (s *service) SetQuantity(ctx context.Context, owner Owner, ref LineRef, qty int) (*Cart, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	cart, err := s.storeFor(owner).Mutate(ctx, owner, func(lines *Lines) error {
		current, err := s.lookup(ctx, lines, ref)
		if err != nil {
			return err
		}
		resolved, err := s.resolver.Resolve(ctx, current.ProductID, current.VariantID)
		if err != nil {
			return err
		}
		if err := checkStock(qty, resolved); err != nil {
			return err
		}
		_, err = lines.SetQuantity(ByID(current.ID), qty)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordMutation(ctx, "set_quantity", owner)
	return cart, nil
}

func (s *service) Remove(ctx context.Context, owner Owner, ref LineRef) (*Cart, error) {
	cart, err := s.storeFor(owner).Mutate(ctx, owner, func(lines *Lines) error {
		current, err := s.lookup(ctx, lines, ref)
		if err != nil {
			return err
		}
		return lines.Remove(ByID(current.ID))
	})
	if err != nil {
		return nil, err
	}
	s.recordMutation(ctx, "remove", owner)
	return cart, nil
}

// lookup finds the line ref addresses. A product key without a variant also matches
// the line Add stored for it, which carries the product's first variant.
func (s *service) lookup(ctx context.Context, lines *Lines, ref LineRef) (Line, error) {
	if line, ok := lines.Get(ref); ok {
		return line, nil
	}
	if ref.LineID != 0 || ref.VariantID != nil || ref.ProductID == uuid.Nil {
		return Line{}, errLineNotFound()
	}
	resolved, err := s.resolver.ResolveForAdd(ctx, ref.ProductID, nil)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return Line{}, errLineNotFound()
	}
	if err != nil {
		return Line{}, err
	}
	if resolved.VariantID == nil {
		return Line{}, errLineNotFound()
	}
	line, ok := lines.Get(ByKey(ref.ProductID, resolved.VariantID))
	if !ok {
		return Line{}, errLineNotFound()
	}
	return line, nil
}

// ReassignVariant moves a line onto another variant of its product, merging with an
// existing line for that variant. The destination resolution is returned for display.
func (s *service) ReassignVariant(ctx context.Context, owner Owner, lineID int64, productID, variantID uuid.UUID) (*Cart, *catalog.Resolution, error) {
	if lineID <= 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "lineId is required")
	}
	resolved, err := s.resolver.Resolve(ctx, productID, &variantID)
	if err != nil {
		return nil, nil, err
	}
	cart, err := s.storeFor(owner).Mutate(ctx, owner, func(lines *Lines) error {
		current, ok := lines.Get(ByID(lineID))
		if !ok || current.ProductID != productID {
			return errLineNotFound()
		}
		survivor, err := lines.Reassign(lineID, resolved.VariantID)
		if err != nil {
			return err
		}
		return checkStock(survivor.Quantity, resolved)
	})
	if err != nil {
		return nil, nil, err
	}
	s.recordMutation(ctx, "reassign_variant", owner)
	return cart, resolved, nil
}

func (s *service) Clear(ctx context.Context, owner Owner) (*Cart, error) {
	cart, err := s.storeFor(owner).Clear(ctx, owner)
	if err != nil {
		return nil, err
	}
	s.recordMutation(ctx, "clear", owner)
	return cart, nil
}

// Price re-resolves every line; prices are never read from the cart itself.
func (s *service) Price(ctx context.Context, cart *Cart) (*Priced, error) {
	out := &Priced{}
	if cart == nil {
		return out, nil
	}
	out.Lines = make([]PricedLine, 0, len(cart.Items))
	for _, line := range cart.Items {
		resolved, err := s.resolver.Resolve(ctx, line.ProductID, line.VariantID)
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			out.Unavailable = append(out.Unavailable, line)
			continue
		}
		if err != nil {
			return nil, err
		}
		total := resolved.UnitPrice * int64(line.Quantity)
		out.Lines = append(out.Lines, PricedLine{
			LineID:    line.ID,
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Name:      resolved.ProductName,
			Size:      resolved.Size,
			Color:     resolved.Color,
			UnitPrice: resolved.UnitPrice,
			Quantity:  line.Quantity,
			LineTotal: total,
		})
		out.Subtotal += total
		out.Count += line.Quantity
	}
	return out, nil
}

func (s *service) recordMutation(ctx context.Context, op string, owner Owner) {
	if s.metrics != nil {
		s.metrics.IncCartMutation(op, owner.Authenticated())
	}
	if s.logg != nil {
		userID := ""
		if owner.Authenticated() {
			userID = owner.UserID.String()
		}
		logCtx := s.logg.WithCartOwner(ctx, userID)
		logCtx = s.logg.WithField(logCtx, "operation", op)
		s.logg.Debug(logCtx, "cart mutated")
	}
}

func checkStock(requested int, resolved *catalog.Resolution) error {
	if requested <= resolved.AvailableStock {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "requested quantity exceeds available stock").
		WithDetails(map[string]any{
			"requested": requested,
			"available": resolved.AvailableStock,
		})
}
