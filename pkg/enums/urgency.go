package enums

import "time"

// Urgency ranks a pending milestone by time left before auto-approval.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// UrgencyFor classifies remaining review time. Overdue counts as high.
func UrgencyFor(remaining time.Duration) Urgency {
	switch {
	case remaining < 6*time.Hour:
		return UrgencyHigh
	case remaining < 24*time.Hour:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}
