package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
	"gorm.io/gorm"
)

// Providers stop retrying long before this, so older receipts no longer
// guard against duplicates.
const receiptRetentionDays = 30

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ReceiptRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository receiptCleanupRepo
	Retention  int
}

type receiptCleanupRepo interface {
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

func NewReceiptRetentionJob(params ReceiptRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("receipt repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = receiptRetentionDays
	}
	return &receiptRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: retention,
		now:       time.Now,
	}, nil
}

type receiptRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      receiptCleanupRepo
	retention int
	now       func() time.Time
}

func (j *receiptRetentionJob) Name() string { return "webhook-receipt-retention" }

// Every keeps the purge to once a day regardless of the worker cadence.
func (j *receiptRetentionJob) Every() time.Duration { return 24 * time.Hour }

func (j *receiptRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeleteOlderThan(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("webhook receipt retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "webhook receipt retention complete")
	return nil
}
