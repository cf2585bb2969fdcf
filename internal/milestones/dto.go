package milestones

import (
	"time"

	"github.com/angelmondragon/stitchpay-backend/pkg/auth"
	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	"github.com/google/uuid"
)

const (
	MinPhotos = 1
	MaxPhotos = 5
)

// SubmitInput uploads progress for one milestone of an order.
type SubmitInput struct {
	OrderID   uuid.UUID
	Milestone enums.MilestoneType
	PhotoURLs []string
	Notes     *string
	Actor     auth.Actor
}

// ResolveInput records a review decision. Comment is the rejection reason
// when Action is REJECTED.
type ResolveInput struct {
	MilestoneID uuid.UUID
	Action      enums.ApprovalStatus
	Actor       auth.Actor
	Comment     string
}

// Result is the committed outcome of Submit or Resolve, handed to the orchestrator.
type Result struct {
	Milestone *models.OrderMilestone
	Order     *models.Order
}

// PendingMilestone is a milestone awaiting review annotated with urgency.
type PendingMilestone struct {
	ID                   uuid.UUID           `json:"id"`
	OrderID              uuid.UUID           `json:"orderId"`
	Milestone            enums.MilestoneType `json:"milestone"`
	PhotoURLs            []string            `json:"photoUrls"`
	Notes                *string             `json:"notes,omitempty"`
	Revision             int                 `json:"revision"`
	SubmittedAt          time.Time           `json:"submittedAt"`
	AutoApprovalDeadline time.Time           `json:"autoApprovalDeadline"`
	HoursRemaining       float64             `json:"hoursRemaining"`
	Overdue              bool                `json:"overdue"`
	Urgency              enums.Urgency       `json:"urgency"`
}

func pendingFrom(m models.OrderMilestone, now time.Time) PendingMilestone {
	remaining := m.AutoApprovalDeadline.Sub(now)
	hours := remaining.Hours()
	if hours < 0 {
		hours = 0
	}
	return PendingMilestone{
		ID:                   m.ID,
		OrderID:              m.OrderID,
		Milestone:            m.Milestone,
		PhotoURLs:            []string(m.PhotoURLs),
		Notes:                m.Notes,
		Revision:             m.Revision,
		SubmittedAt:          m.SubmittedAt,
		AutoApprovalDeadline: m.AutoApprovalDeadline,
		HoursRemaining:       float64(int(hours*10)) / 10,
		Overdue:              remaining <= 0,
		Urgency:              enums.UrgencyFor(remaining),
	}
}
