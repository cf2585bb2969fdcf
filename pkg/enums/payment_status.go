package enums

import "slices"

// PaymentStatus tracks the provider-reported state of a payment transaction.
type PaymentStatus string

const (
	PaymentStatusSuccess   PaymentStatus = "Success"
	PaymentStatusPending   PaymentStatus = "Pending"
	PaymentStatusFailed    PaymentStatus = "Failed"
	PaymentStatusCancelled PaymentStatus = "Cancelled"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusSuccess,
	PaymentStatusPending,
	PaymentStatusFailed,
	PaymentStatusCancelled,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	return slices.Contains(validPaymentStatuses, p)
}

// IsFinal reports whether the provider will not report further changes.
func (p PaymentStatus) IsFinal() bool {
	return p == PaymentStatusSuccess || p == PaymentStatusFailed || p == PaymentStatusCancelled
}

// CanTransitionTo reports whether a stored status may be replaced by next.
// Final outcomes are frozen; a late or redelivered callback cannot undo them.
func (p PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if !next.IsValid() {
		return false
	}
	return !p.IsFinal() || p == next
}

// FinalPaymentStatuses lists the statuses IsFinal reports true for.
func FinalPaymentStatuses() []PaymentStatus {
	return []PaymentStatus{PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusCancelled}
}

// ParsePaymentStatus converts raw input into a PaymentStatus. Matching is
// case-insensitive because providers disagree on casing.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parse(validPaymentStatuses, value, "payment status")
}
