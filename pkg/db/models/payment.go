package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Payment records one settlement attempt for an order. Amount always equals the order total.
type Payment struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID            uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Method             enums.PaymentMethod `gorm:"column:method;not null"`
	Status             enums.PaymentStatus `gorm:"column:status;not null"`
	Amount             int64               `gorm:"column:amount;not null"`
	GatewayReference   *string             `gorm:"column:gateway_reference"`
	SettlementCurrency *string             `gorm:"column:settlement_currency"`
	SettlementAmount   *string             `gorm:"column:settlement_amount"`
	PaidAt             *time.Time          `gorm:"column:paid_at"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
