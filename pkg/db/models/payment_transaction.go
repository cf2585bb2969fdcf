package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
)

// PaymentTransaction mirrors one provider payment attempt. Rows are keyed by
// the provider transaction id and never deleted.
type PaymentTransaction struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	TransactionID string              `gorm:"column:transaction_id;type:text;not null;uniqueIndex" json:"transactionId"`
	Provider      string              `gorm:"column:provider;type:text;not null" json:"provider"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null" json:"orderId"`
	EscrowStage   enums.EscrowStage   `gorm:"column:escrow_stage;type:text;not null" json:"escrowStage"`
	Amount        decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Status        enums.PaymentStatus `gorm:"column:status;type:text;not null" json:"status"`
	Reference     string              `gorm:"column:reference;type:text;not null" json:"reference"`
	PaymentURL    *string             `gorm:"column:payment_url;type:text" json:"paymentURL,omitempty"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
