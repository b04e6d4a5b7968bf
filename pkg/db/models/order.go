package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Order is created once per successful checkout. Totals are server computed and
// the shipping fields are a snapshot of the checkout form.
type Order struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID         *uuid.UUID        `gorm:"column:user_id;type:uuid;index"`
	Status         enums.OrderStatus `gorm:"column:status;not null"`
	Subtotal       int64             `gorm:"column:subtotal;not null"`
	ShippingFee    int64             `gorm:"column:shipping_fee;not null"`
	Tax            int64             `gorm:"column:tax;not null;default:0"`
	Total          int64             `gorm:"column:total;not null"`
	DiscountAmount *int64            `gorm:"column:discount_amount"`
	VoucherCode    *string           `gorm:"column:voucher_code"`
	Currency       string            `gorm:"column:currency;not null"`

	FullName    string  `gorm:"column:full_name;not null"`
	Email       string  `gorm:"column:email;not null"`
	Phone       string  `gorm:"column:phone;not null"`
	AddressLine string  `gorm:"column:address_line;not null"`
	City        string  `gorm:"column:city;not null"`
	Note        *string `gorm:"column:note"`

	Items     []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments  []Payment   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// OrderItem is an immutable snapshot of a cart line at order creation.
type OrderItem struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariantID   *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	ProductName string     `gorm:"column:product_name;not null"`
	Size        string     `gorm:"column:size"`
	Color       string     `gorm:"column:color"`
	Quantity    int        `gorm:"column:quantity;not null"`
	UnitPrice   int64      `gorm:"column:unit_price;not null"`
	LineTotal   int64      `gorm:"column:line_total;not null"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}
