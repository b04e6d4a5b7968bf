package cart

import (
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Line is one (product, variant) selection with a positive quantity.
type Line struct {
	ID        int64
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// Key returns the merge key of the line.
func (l Line) Key() LineRef {
	return ByKey(l.ProductID, l.VariantID)
}

// Lines is the storage-agnostic line list both stores mutate through.
// NextID is the last id handed out; new lines take NextID+1.
type Lines struct {
	Items  []Line
	NextID int64
}

// Count is the total quantity across lines.
func (ls *Lines) Count() int {
	total := 0
	for _, item := range ls.Items {
		total += item.Quantity
	}
	return total
}

// Empty reports whether there are no lines.
func (ls *Lines) Empty() bool {
	return len(ls.Items) == 0
}

// Clone returns a deep copy.
func (ls *Lines) Clone() Lines {
	out := Lines{NextID: ls.NextID, Items: make([]Line, len(ls.Items))}
	for i, item := range ls.Items {
		out.Items[i] = item
		if item.VariantID != nil {
			v := *item.VariantID
			out.Items[i].VariantID = &v
		}
	}
	return out
}

// Find returns the index of the line matching ref, or -1.
func (ls *Lines) Find(ref LineRef) int {
	for i, item := range ls.Items {
		if ref.LineID != 0 {
			if item.ID == ref.LineID {
				return i
			}
			continue
		}
		if item.ProductID == ref.ProductID && sameVariant(item.VariantID, ref.VariantID) {
			return i
		}
	}
	return -1
}

// Get returns the line matching ref.
func (ls *Lines) Get(ref LineRef) (Line, bool) {
	idx := ls.Find(ref)
	if idx < 0 {
		return Line{}, false
	}
	return ls.Items[idx], true
}

// Add merges qty into the line with the same key or appends a new line.
func (ls *Lines) Add(productID uuid.UUID, variantID *uuid.UUID, qty int) (Line, error) {
	if qty <= 0 {
		return Line{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if idx := ls.Find(ByKey(productID, variantID)); idx >= 0 {
		ls.Items[idx].Quantity += qty
		return ls.Items[idx], nil
	}
	ls.NextID++
	line := Line{ID: ls.NextID, ProductID: productID, VariantID: copyID(variantID), Quantity: qty}
	ls.Items = append(ls.Items, line)
	return line, nil
}

// SetQuantity overwrites the quantity of one line.
func (ls *Lines) SetQuantity(ref LineRef, qty int) (Line, error) {
	if qty <= 0 {
		return Line{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	idx := ls.Find(ref)
	if idx < 0 {
		return Line{}, errLineNotFound()
	}
	ls.Items[idx].Quantity = qty
	return ls.Items[idx], nil
}

// Remove deletes one line.
func (ls *Lines) Remove(ref LineRef) error {
	idx := ls.Find(ref)
	if idx < 0 {
		return errLineNotFound()
	}
	ls.Items = append(ls.Items[:idx], ls.Items[idx+1:]...)
	return nil
}

// Reassign moves a line to another variant of the same product. When a line already
// holds the destination key, that line keeps its id and absorbs the quantity and the
// source line is removed. The surviving line is returned.
func (ls *Lines) Reassign(lineID int64, variantID *uuid.UUID) (Line, error) {
	src := ls.Find(ByID(lineID))
	if src < 0 {
		return Line{}, errLineNotFound()
	}
	source := ls.Items[src]
	if sameVariant(source.VariantID, variantID) {
		return source, nil
	}
	dst := ls.Find(ByKey(source.ProductID, variantID))
	if dst < 0 {
		ls.Items[src].VariantID = copyID(variantID)
		return ls.Items[src], nil
	}
	ls.Items[dst].Quantity += source.Quantity
	survivor := ls.Items[dst]
	ls.Items = append(ls.Items[:src], ls.Items[src+1:]...)
	return survivor, nil
}

func sameVariant(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func errLineNotFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
}
