package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// PendingCheckout parks a redirect checkout between authorization and the gateway callback.
// Token is the value the gateway hands back on return/cancel.
type PendingCheckout struct {
	Token              string                      `gorm:"column:token;primaryKey"`
	Gateway            enums.PaymentMethod         `gorm:"column:gateway;not null"`
	RemoteID           string                      `gorm:"column:remote_id;not null"`
	UserID             *uuid.UUID                  `gorm:"column:user_id;type:uuid"`
	CartToken          *string                     `gorm:"column:cart_token"`
	Shipping           json.RawMessage             `gorm:"column:shipping;type:jsonb;not null"`
	Amount             int64                       `gorm:"column:amount;not null"`
	SettlementCurrency string                      `gorm:"column:settlement_currency;not null"`
	SettlementAmount   string                      `gorm:"column:settlement_amount;not null"`
	Status             enums.PendingCheckoutStatus `gorm:"column:status;not null"`
	OrderID            *uuid.UUID                  `gorm:"column:order_id;type:uuid"`
	FailureReason      *string                     `gorm:"column:failure_reason"`
	CreatedAt          time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}
