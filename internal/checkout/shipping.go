package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// ShippingDetails is the contact block submitted with the checkout form.
type ShippingDetails struct {
	FullName    string  `json:"fullName" validate:"required,max=120"`
	Email       string  `json:"email" validate:"required,email,max=254"`
	Phone       string  `json:"phone" validate:"required,min=6,max=32"`
	AddressLine string  `json:"addressLine" validate:"required,max=255"`
	City        string  `json:"city" validate:"required,max=120"`
	Note        *string `json:"note,omitempty" validate:"omitempty,max=500"`
}

// Normalize trims whitespace and drops an empty note.
func (d ShippingDetails) Normalize() ShippingDetails {
	out := ShippingDetails{
		FullName:    strings.TrimSpace(d.FullName),
		Email:       strings.ToLower(strings.TrimSpace(d.Email)),
		Phone:       strings.TrimSpace(d.Phone),
		AddressLine: strings.TrimSpace(d.AddressLine),
		City:        strings.TrimSpace(d.City),
	}
	if d.Note != nil {
		if note := strings.TrimSpace(*d.Note); note != "" {
			out.Note = &note
		}
	}
	return out
}

// Validate reports missing or malformed fields as a validation error keyed by field.
func (d ShippingDetails) Validate() error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping details")
	}
	details := map[string]string{}
	for _, fe := range fieldErrs {
		details[fe.Field()] = fieldMessage(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid shipping details").WithDetails(details)
}

// Snapshot converts the form into the order's shipping snapshot.
func (d ShippingDetails) Snapshot() orders.ShippingSnapshot {
	return orders.ShippingSnapshot{
		FullName:    d.FullName,
		Email:       d.Email,
		Phone:       d.Phone,
		AddressLine: d.AddressLine,
		City:        d.City,
		Note:        d.Note,
	}
}

// DetailsFromSnapshot prefills the form from a previous order.
func DetailsFromSnapshot(s orders.ShippingSnapshot) ShippingDetails {
	return ShippingDetails{
		FullName:    s.FullName,
		Email:       s.Email,
		Phone:       s.Phone,
		AddressLine: s.AddressLine,
		City:        s.City,
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	}
	return "is invalid"
}
