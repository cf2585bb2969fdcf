package paymentwebhook

import (
	"context"
	"time"

	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReceiptRepository stores one row per processed (transaction id, status).
type ReceiptRepository interface {
	WithTx(tx *gorm.DB) ReceiptRepository
	Insert(ctx context.Context, receipt *models.WebhookReceipt) (bool, error)
	Delete(ctx context.Context, transactionID string, status enums.PaymentStatus) error
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type receiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) ReceiptRepository {
	return &receiptRepository{db: db}
}

func (r *receiptRepository) WithTx(tx *gorm.DB) ReceiptRepository {
	if tx == nil {
		return r
	}
	return &receiptRepository{db: tx}
}

// Insert reports false when the pair was already recorded.
func (r *receiptRepository) Insert(ctx context.Context, receipt *models.WebhookReceipt) (bool, error) {
	if receipt.ID == uuid.Nil {
		receipt.ID = uuid.New()
	}
	if receipt.ReceivedAt.IsZero() {
		receipt.ReceivedAt = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}, {Name: "status"}},
			DoNothing: true,
		}).
		Create(receipt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *receiptRepository) Delete(ctx context.Context, transactionID string, status enums.PaymentStatus) error {
	return r.db.WithContext(ctx).
		Where("transaction_id = ? AND status = ?", transactionID, status).
		Delete(&models.WebhookReceipt{}).Error
}

// DeleteOlderThan prunes receipts received before cutoff.
func (r *receiptRepository) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	res := db.WithContext(ctx).
		Where("received_at < ?", cutoff).
		Delete(&models.WebhookReceipt{})
	return res.RowsAffected, res.Error
}
