package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
)

// Order is a tailoring transaction between one customer and one tailor.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CustomerID      uuid.UUID         `gorm:"column:customer_id;type:uuid;not null" json:"customerId"`
	TailorID        uuid.UUID         `gorm:"column:tailor_id;type:uuid;not null" json:"tailorId"`
	TotalAmount     decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null" json:"totalAmount"`
	Status          enums.OrderStatus `gorm:"column:status;type:text;not null" json:"status"`
	CustomerContact string            `gorm:"column:customer_contact;type:text;not null" json:"customerContact"`
	PaymentSourceID *string           `gorm:"column:payment_source_id;type:text" json:"paymentSourceId,omitempty"`
	RejectionCount  int               `gorm:"column:rejection_count;not null;default:0" json:"rejectionCount"`
	LastRejectedAt  *time.Time        `gorm:"column:last_rejected_at" json:"lastRejectedAt,omitempty"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
