package enums

import "slices"

// ApprovalStatus is the review state of a milestone submission.
type ApprovalStatus string

const (
	ApprovalStatusPending      ApprovalStatus = "PENDING"
	ApprovalStatusApproved     ApprovalStatus = "APPROVED"
	ApprovalStatusRejected     ApprovalStatus = "REJECTED"
	ApprovalStatusAutoApproved ApprovalStatus = "AUTO_APPROVED"
)

var validApprovalStatuses = []ApprovalStatus{
	ApprovalStatusPending,
	ApprovalStatusApproved,
	ApprovalStatusRejected,
	ApprovalStatusAutoApproved,
}

// approvalTransitions is the only place milestone status moves are declared.
// REJECTED -> PENDING is a resubmission that starts a new review lifecycle.
var approvalTransitions = map[ApprovalStatus][]ApprovalStatus{
	ApprovalStatusPending:  {ApprovalStatusApproved, ApprovalStatusRejected, ApprovalStatusAutoApproved},
	ApprovalStatusRejected: {ApprovalStatusPending},
}

// String implements fmt.Stringer.
func (a ApprovalStatus) String() string {
	return string(a)
}

// IsValid reports whether the value is a known ApprovalStatus.
func (a ApprovalStatus) IsValid() bool {
	return slices.Contains(validApprovalStatuses, a)
}

// IsResolution reports whether the status is a valid outcome of a review.
func (a ApprovalStatus) IsResolution() bool {
	return a != ApprovalStatusPending && a.IsValid()
}

// IsApproval reports whether the status releases funds.
func (a ApprovalStatus) IsApproval() bool {
	return a == ApprovalStatusApproved || a == ApprovalStatusAutoApproved
}

// CanTransitionTo consults the central transition table.
func (a ApprovalStatus) CanTransitionTo(to ApprovalStatus) bool {
	return slices.Contains(approvalTransitions[a], to)
}

// ParseApprovalStatus converts raw input into an ApprovalStatus.
func ParseApprovalStatus(value string) (ApprovalStatus, error) {
	return parse(validApprovalStatuses, value, "approval status")
}
