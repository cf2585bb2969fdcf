package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
)

// OrderEscrow holds the three-stage split of an order's funds. Bucket amounts
// are written once at order creation.
type OrderEscrow struct {
	OrderID           uuid.UUID         `gorm:"column:order_id;type:uuid;primaryKey" json:"orderId"`
	Stage             enums.EscrowStage `gorm:"column:stage;type:text;not null" json:"stage"`
	TotalAmount       decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null" json:"totalAmount"`
	DepositAmount     decimal.Decimal   `gorm:"column:deposit_amount;type:numeric(12,2);not null" json:"depositAmount"`
	FittingAmount     decimal.Decimal   `gorm:"column:fitting_amount;type:numeric(12,2);not null" json:"fittingAmount"`
	FinalAmount       decimal.Decimal   `gorm:"column:final_amount;type:numeric(12,2);not null" json:"finalAmount"`
	Balance           decimal.Decimal   `gorm:"column:balance;type:numeric(12,2);not null" json:"balance"`
	DepositReleasedAt *time.Time        `gorm:"column:deposit_released_at" json:"depositReleasedAt,omitempty"`
	FittingReleasedAt *time.Time        `gorm:"column:fitting_released_at" json:"fittingReleasedAt,omitempty"`
	FinalReleasedAt   *time.Time        `gorm:"column:final_released_at" json:"finalReleasedAt,omitempty"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// BucketFor returns the amount held for the given stage.
func (e OrderEscrow) BucketFor(stage enums.EscrowStage) decimal.Decimal {
	switch stage {
	case enums.EscrowStageDeposit:
		return e.DepositAmount
	case enums.EscrowStageFitting:
		return e.FittingAmount
	case enums.EscrowStageFinal:
		return e.FinalAmount
	default:
		return decimal.Zero
	}
}

// ReleasedAt returns the release timestamp recorded for a stage's bucket.
func (e OrderEscrow) ReleasedAt(stage enums.EscrowStage) *time.Time {
	switch stage {
	case enums.EscrowStageDeposit:
		return e.DepositReleasedAt
	case enums.EscrowStageFitting:
		return e.FittingReleasedAt
	case enums.EscrowStageFinal:
		return e.FinalReleasedAt
	default:
		return nil
	}
}
