package cart

import (
	"strings"

	"github.com/google/uuid"
)

// Owner identifies whose cart is addressed. Authenticated owners carry a user id;
// anonymous owners carry the client-held cart token (possibly empty).
type Owner struct {
	UserID uuid.UUID
	Token  string
}

// Authenticated reports whether the cart lives in server rows.
func (o Owner) Authenticated() bool {
	return o.UserID != uuid.Nil
}

// UserIDPtr returns the user id for nullable columns.
func (o Owner) UserIDPtr() *uuid.UUID {
	if !o.Authenticated() {
		return nil
	}
	id := o.UserID
	return &id
}

// UserOwner and TokenOwner are convenience constructors.
func UserOwner(id uuid.UUID) Owner { return Owner{UserID: id} }

func TokenOwner(token string) Owner { return Owner{Token: strings.TrimSpace(token)} }

// LineRef addresses a line either by id or by its (product, variant) key.
type LineRef struct {
	LineID    int64
	ProductID uuid.UUID
	VariantID *uuid.UUID
}

// ByID and ByKey build refs.
func ByID(id int64) LineRef { return LineRef{LineID: id} }

func ByKey(productID uuid.UUID, variantID *uuid.UUID) LineRef {
	return LineRef{ProductID: productID, VariantID: variantID}
}
