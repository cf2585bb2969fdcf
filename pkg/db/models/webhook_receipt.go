package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
)

// WebhookReceipt is the durable dedup record for a processed
// (transaction id, status) pair.
type WebhookReceipt struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Provider      string              `gorm:"column:provider;type:text;not null"`
	TransactionID string              `gorm:"column:transaction_id;type:text;not null"`
	Status        enums.PaymentStatus `gorm:"column:status;type:text;not null"`
	OrderID       *uuid.UUID          `gorm:"column:order_id;type:uuid"`
	ReceivedAt    time.Time           `gorm:"column:received_at;not null"`
}
