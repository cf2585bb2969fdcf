package escrow

import (
	"context"
	"time"

	"github.com/angelmondragon/stitchpay-backend/internal/repo"
	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Repository persists escrow rows. Stage changes only go through
// CompareAndAdvance or Override.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, escrow *models.OrderEscrow) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.OrderEscrow, error)
	CompareAndAdvance(ctx context.Context, change StageChange) (bool, error)
	Override(ctx context.Context, orderID uuid.UUID, updates OverrideUpdate) (bool, error)
}

// StageChange is a conditional stage move keyed on the expected from-stage.
type StageChange struct {
	OrderID    uuid.UUID
	From       enums.EscrowStage
	To         enums.EscrowStage
	Balance    decimal.Decimal
	ReleasedAt time.Time
}

// OverrideUpdate replaces stage, balance and release stamps wholesale. It
// only applies while the row is still at From.
type OverrideUpdate struct {
	From              enums.EscrowStage
	Stage             enums.EscrowStage
	Balance           decimal.Decimal
	DepositReleasedAt *time.Time
	FittingReleasedAt *time.Time
	FinalReleasedAt   *time.Time
}

type repository struct {
	repo.Base
}

// NewRepository returns an escrow repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, escrow *models.OrderEscrow) error {
	return r.DB(ctx).Create(escrow).Error
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.OrderEscrow, error) {
	var escrow models.OrderEscrow
	if err := r.DB(ctx).
		Where("order_id = ?", orderID).
		First(&escrow).Error; err != nil {
		return nil, err
	}
	return &escrow, nil
}

func (r *repository) CompareAndAdvance(ctx context.Context, change StageChange) (bool, error) {
	updates := map[string]any{
		"stage":      change.To,
		"balance":    change.Balance,
		"updated_at": change.ReleasedAt,
	}
	if column := releasedColumn(change.From); column != "" {
		updates[column] = change.ReleasedAt
	}

	return r.GuardedUpdate(ctx, &models.OrderEscrow{}, repo.Guard{"order_id": change.OrderID, "stage": change.From}, updates)
}

func (r *repository) Override(ctx context.Context, orderID uuid.UUID, updates OverrideUpdate) (bool, error) {
	return r.GuardedUpdate(ctx, &models.OrderEscrow{}, repo.Guard{"order_id": orderID, "stage": updates.From}, map[string]any{
		"stage":               updates.Stage,
		"balance":             updates.Balance,
		"deposit_released_at": updates.DepositReleasedAt,
		"fitting_released_at": updates.FittingReleasedAt,
		"final_released_at":   updates.FinalReleasedAt,
		"updated_at":          time.Now().UTC(),
	})
}

func releasedColumn(stage enums.EscrowStage) string {
	switch stage {
	case enums.EscrowStageDeposit:
		return "deposit_released_at"
	case enums.EscrowStageFitting:
		return "fitting_released_at"
	case enums.EscrowStageFinal:
		return "final_released_at"
	default:
		return ""
	}
}
