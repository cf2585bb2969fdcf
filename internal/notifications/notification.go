package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Notification is the message handed to the delivery channel. Rendering
// (email, SMS, push) happens downstream of the topic.
type Notification struct {
	Type          enums.NotificationType     `json:"type"`
	RecipientID   uuid.UUID                  `json:"recipientId"`
	RecipientRole enums.ActorRole            `json:"recipientRole"`
	Contact       string                     `json:"contact,omitempty"`
	OrderID       uuid.UUID                  `json:"orderId"`
	MilestoneID   *uuid.UUID                 `json:"milestoneId,omitempty"`
	Priority      enums.NotificationPriority `json:"priority"`
	Title         string                     `json:"title"`
	Message       string                     `json:"message"`
	Data          map[string]any             `json:"data,omitempty"`
	CreatedAt     time.Time                  `json:"createdAt"`
}

// MilestoneSubmitted asks the customer to review new progress photos.
func MilestoneSubmitted(order *models.Order, milestone *models.OrderMilestone) Notification {
	id := milestone.ID
	return Notification{
		Type:          enums.NotificationTypeMilestoneSubmitted,
		RecipientID:   order.CustomerID,
		RecipientRole: enums.ActorRoleCustomer,
		Contact:       order.CustomerContact,
		OrderID:       order.ID,
		MilestoneID:   &id,
		Priority:      enums.NotificationPriorityNormal,
		Title:         fmt.Sprintf("%s ready for review", milestoneLabel(milestone.Milestone)),
		Message:       fmt.Sprintf("Your tailor shared %d photo(s). Review before %s or it will be approved automatically.", len(milestone.PhotoURLs), milestone.AutoApprovalDeadline.UTC().Format(time.RFC1123)),
		Data: map[string]any{
			"milestone":            milestone.Milestone,
			"photoUrls":            []string(milestone.PhotoURLs),
			"autoApprovalDeadline": milestone.AutoApprovalDeadline.UTC(),
			"revision":             milestone.Revision,
		},
	}
}

// MilestoneResolved tells the tailor how the customer (or the sweep) decided.
func MilestoneResolved(order *models.Order, milestone *models.OrderMilestone) Notification {
	id := milestone.ID
	n := Notification{
		RecipientID:   order.TailorID,
		RecipientRole: enums.ActorRoleTailor,
		OrderID:       order.ID,
		MilestoneID:   &id,
		Priority:      enums.NotificationPriorityNormal,
		Data: map[string]any{
			"milestone":      milestone.Milestone,
			"approvalStatus": milestone.ApprovalStatus,
		},
	}
	label := milestoneLabel(milestone.Milestone)
	switch milestone.ApprovalStatus {
	case enums.ApprovalStatusRejected:
		n.Type = enums.NotificationTypeMilestoneRejected
		n.Priority = enums.NotificationPriorityHigh
		n.Title = fmt.Sprintf("%s needs changes", label)
		reason := ""
		if milestone.RejectionReason != nil {
			reason = *milestone.RejectionReason
		}
		n.Message = fmt.Sprintf("The customer requested changes: %s", reason)
		n.Data["rejectionReason"] = reason
	case enums.ApprovalStatusAutoApproved:
		n.Type = enums.NotificationTypeMilestoneAutoApproved
		n.Title = fmt.Sprintf("%s approved automatically", label)
		n.Message = "The review window closed without a response."
	default:
		n.Type = enums.NotificationTypeMilestoneApproved
		n.Title = fmt.Sprintf("%s approved", label)
		n.Message = "The customer approved your progress."
	}
	if milestone.ReviewComment != nil && *milestone.ReviewComment != "" {
		n.Data["comment"] = *milestone.ReviewComment
	}
	return n
}

// PaymentReminder asks the customer to pay the next escrow stage.
func PaymentReminder(order *models.Order, stage enums.EscrowStage, amount decimal.Decimal, paymentURL string) Notification {
	return Notification{
		Type:          enums.NotificationTypePaymentReminder,
		RecipientID:   order.CustomerID,
		RecipientRole: enums.ActorRoleCustomer,
		Contact:       order.CustomerContact,
		OrderID:       order.ID,
		Priority:      enums.NotificationPriorityHigh,
		Title:         "Payment due for your order",
		Message:       fmt.Sprintf("Your fitting was approved. Please pay %s to continue.", amount.StringFixed(2)),
		Data: map[string]any{
			"stage":      stage,
			"amount":     amount.StringFixed(2),
			"paymentUrl": paymentURL,
		},
	}
}

// PaymentReceived tells the tailor a stage payment cleared.
func PaymentReceived(order *models.Order, stage enums.EscrowStage, amount decimal.Decimal) Notification {
	return Notification{
		Type:          enums.NotificationTypePaymentReceived,
		RecipientID:   order.TailorID,
		RecipientRole: enums.ActorRoleTailor,
		OrderID:       order.ID,
		Priority:      enums.NotificationPriorityNormal,
		Title:         "Payment received",
		Message:       fmt.Sprintf("The customer paid %s for the %s stage.", amount.StringFixed(2), strings.ToLower(stage.String())),
		Data: map[string]any{
			"stage":  stage,
			"amount": amount.StringFixed(2),
		},
	}
}

// OrderCompleted tells the tailor the final funds were released.
func OrderCompleted(order *models.Order, released, net decimal.Decimal) Notification {
	return Notification{
		Type:          enums.NotificationTypeOrderCompleted,
		RecipientID:   order.TailorID,
		RecipientRole: enums.ActorRoleTailor,
		OrderID:       order.ID,
		Priority:      enums.NotificationPriorityNormal,
		Title:         "Order completed",
		Message:       fmt.Sprintf("Final payment released. %s will be paid out to you.", net.StringFixed(2)),
		Data: map[string]any{
			"releasedAmount": released.StringFixed(2),
			"netAmount":      net.StringFixed(2),
		},
	}
}

func milestoneLabel(m enums.MilestoneType) string {
	words := strings.Split(strings.ToLower(m.String()), "_")
	if len(words) > 0 && words[0] != "" {
		words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	}
	return strings.Join(words, " ")
}
