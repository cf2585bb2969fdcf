package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
)

// OrderMilestone is the single review row for an (order, milestone type) pair.
type OrderMilestone struct {
	ID                   uuid.UUID            `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID              uuid.UUID            `gorm:"column:order_id;type:uuid;not null" json:"orderId"`
	Milestone            enums.MilestoneType  `gorm:"column:milestone;type:text;not null" json:"milestone"`
	PhotoURLs            pq.StringArray       `gorm:"column:photo_urls;type:text[];not null" json:"photoUrls"`
	Notes                *string              `gorm:"column:notes;type:text" json:"notes,omitempty"`
	ApprovalStatus       enums.ApprovalStatus `gorm:"column:approval_status;type:text;not null" json:"approvalStatus"`
	Revision             int                  `gorm:"column:revision;not null;default:1" json:"revision"`
	SubmittedAt          time.Time            `gorm:"column:submitted_at;not null" json:"submittedAt"`
	AutoApprovalDeadline time.Time            `gorm:"column:auto_approval_deadline;not null" json:"autoApprovalDeadline"`
	CustomerReviewedAt   *time.Time           `gorm:"column:customer_reviewed_at" json:"customerReviewedAt,omitempty"`
	ReviewedBy           *uuid.UUID           `gorm:"column:reviewed_by;type:uuid" json:"reviewedBy,omitempty"`
	ReviewComment        *string              `gorm:"column:review_comment;type:text" json:"reviewComment,omitempty"`
	RejectionReason      *string              `gorm:"column:rejection_reason;type:text" json:"rejectionReason,omitempty"`
	CreatedAt            time.Time            `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt            time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
