package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
)

// LedgerEvent records an immutable escrow movement for an order.
type LedgerEvent struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID             `gorm:"column:order_id;type:uuid;not null"`
	ActorID          uuid.UUID             `gorm:"column:actor_id;type:uuid;not null"`
	Type             enums.LedgerEventType `gorm:"column:type;type:text;not null"`
	FromStage        enums.EscrowStage     `gorm:"column:from_stage;type:text;not null"`
	ToStage          enums.EscrowStage     `gorm:"column:to_stage;type:text;not null"`
	Amount           decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	CommissionAmount decimal.Decimal       `gorm:"column:commission_amount;type:numeric(12,2);not null"`
	NetAmount        decimal.Decimal       `gorm:"column:net_amount;type:numeric(12,2);not null"`
	BalanceAfter     decimal.Decimal       `gorm:"column:balance_after;type:numeric(12,2);not null"`
	Metadata         json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
}
