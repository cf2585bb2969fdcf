package enums

import "slices"

// NotificationType identifies the template a notification consumer renders.
type NotificationType string

const (
	NotificationTypeMilestoneSubmitted    NotificationType = "milestone_submitted"
	NotificationTypeMilestoneApproved     NotificationType = "milestone_approved"
	NotificationTypeMilestoneRejected     NotificationType = "milestone_rejected"
	NotificationTypeMilestoneAutoApproved NotificationType = "milestone_auto_approved"
	NotificationTypePaymentReminder       NotificationType = "payment_reminder"
	NotificationTypePaymentReceived       NotificationType = "payment_received"
	NotificationTypeOrderCompleted        NotificationType = "order_completed"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeMilestoneSubmitted,
	NotificationTypeMilestoneApproved,
	NotificationTypeMilestoneRejected,
	NotificationTypeMilestoneAutoApproved,
	NotificationTypePaymentReminder,
	NotificationTypePaymentReceived,
	NotificationTypeOrderCompleted,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	return slices.Contains(validNotificationTypes, n)
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	return parse(validNotificationTypes, value, "notification type")
}

// NotificationPriority hints delivery urgency to the consumer.
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityNormal NotificationPriority = "normal"
	NotificationPriorityHigh   NotificationPriority = "high"
)
