package milestones

import (
	"context"
	"time"

	"github.com/angelmondragon/stitchpay-backend/internal/repo"
	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Repository persists milestone rows. Status changes are conditional on the
// status the caller observed.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, milestone *models.OrderMilestone) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.OrderMilestone, error)
	FindByOrderAndType(ctx context.Context, orderID uuid.UUID, milestone enums.MilestoneType) (*models.OrderMilestone, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderMilestone, error)
	ListPendingByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderMilestone, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.OrderMilestone, error)
	UpdateSubmission(ctx context.Context, id uuid.UUID, expected enums.ApprovalStatus, update SubmissionUpdate) (bool, error)
	Resolve(ctx context.Context, id uuid.UUID, update ResolutionUpdate) (bool, error)
}

// SubmissionUpdate refreshes a PENDING row or reopens a REJECTED one.
type SubmissionUpdate struct {
	PhotoURLs            []string
	Notes                *string
	Revision             int
	SubmittedAt          time.Time
	AutoApprovalDeadline time.Time
	ClearReview          bool
}

// ResolutionUpdate moves a PENDING row to a terminal status.
type ResolutionUpdate struct {
	Status          enums.ApprovalStatus
	ReviewedAt      time.Time
	ReviewedBy      uuid.UUID
	Comment         *string
	RejectionReason *string
}

type repository struct {
	repo.Base
}

// NewRepository returns a milestone repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, milestone *models.OrderMilestone) error {
	if milestone.ID == uuid.Nil {
		milestone.ID = uuid.New()
	}
	return r.DB(ctx).Create(milestone).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.OrderMilestone, error) {
	var milestone models.OrderMilestone
	if err := r.DB(ctx).Where("id = ?", id).First(&milestone).Error; err != nil {
		return nil, err
	}
	return &milestone, nil
}

func (r *repository) FindByOrderAndType(ctx context.Context, orderID uuid.UUID, milestone enums.MilestoneType) (*models.OrderMilestone, error) {
	var row models.OrderMilestone
	if err := r.DB(ctx).
		Where("order_id = ? AND milestone = ?", orderID, milestone).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderMilestone, error) {
	var rows []models.OrderMilestone
	if err := r.DB(ctx).
		Where("order_id = ?", orderID).
		Order("submitted_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListPendingByOrder(ctx context.Context, orderID uuid.UUID) ([]models.OrderMilestone, error) {
	var rows []models.OrderMilestone
	if err := r.DB(ctx).
		Where("order_id = ? AND approval_status = ?", orderID, enums.ApprovalStatusPending).
		Order("auto_approval_deadline ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.OrderMilestone, error) {
	var rows []models.OrderMilestone
	q := r.DB(ctx).
		Where("approval_status = ? AND auto_approval_deadline <= ?", enums.ApprovalStatusPending, now).
		Order("auto_approval_deadline ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateSubmission(ctx context.Context, id uuid.UUID, expected enums.ApprovalStatus, update SubmissionUpdate) (bool, error) {
	updates := map[string]any{
		"photo_urls":             pq.StringArray(update.PhotoURLs),
		"notes":                  update.Notes,
		"approval_status":        enums.ApprovalStatusPending,
		"revision":               update.Revision,
		"submitted_at":           update.SubmittedAt,
		"auto_approval_deadline": update.AutoApprovalDeadline,
		"updated_at":             update.SubmittedAt,
	}
	if update.ClearReview {
		updates["customer_reviewed_at"] = nil
		updates["reviewed_by"] = nil
		updates["review_comment"] = nil
		updates["rejection_reason"] = nil
	}
	return r.GuardedUpdate(ctx, &models.OrderMilestone{}, repo.Guard{"id": id, "approval_status": expected}, updates)
}

func (r *repository) Resolve(ctx context.Context, id uuid.UUID, update ResolutionUpdate) (bool, error) {
	guard := repo.Guard{"id": id, "approval_status": enums.ApprovalStatusPending}
	return r.GuardedUpdate(ctx, &models.OrderMilestone{}, guard, map[string]any{
		"approval_status":      update.Status,
		"customer_reviewed_at": update.ReviewedAt,
		"reviewed_by":          update.ReviewedBy,
		"review_comment":       update.Comment,
		"rejection_reason":     update.RejectionReason,
		"updated_at":           update.ReviewedAt,
	})
}
