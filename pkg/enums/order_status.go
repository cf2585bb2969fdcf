package enums

import "slices"

// OrderStatus is the coarse workflow state of a tailoring order.
type OrderStatus string

const (
	OrderStatusPendingPayment   OrderStatus = "PENDING_PAYMENT"
	OrderStatusDepositPaid      OrderStatus = "DEPOSIT_PAID"
	OrderStatusInProgress       OrderStatus = "IN_PROGRESS"
	OrderStatusFittingScheduled OrderStatus = "FITTING_SCHEDULED"
	OrderStatusFittingApproved  OrderStatus = "FITTING_APPROVED"
	OrderStatusFinalPaid        OrderStatus = "FINAL_PAID"
	OrderStatusCompleted        OrderStatus = "COMPLETED"
	OrderStatusDisputed         OrderStatus = "DISPUTED"
	OrderStatusCancelled        OrderStatus = "CANCELLED"
)

// progression lists the happy-path statuses in order; DISPUTED and CANCELLED sit outside it.
var orderProgression = []OrderStatus{
	OrderStatusPendingPayment,
	OrderStatusDepositPaid,
	OrderStatusInProgress,
	OrderStatusFittingScheduled,
	OrderStatusFittingApproved,
	OrderStatusFinalPaid,
	OrderStatusCompleted,
}

var validOrderStatuses = append(append([]OrderStatus{}, orderProgression...), OrderStatusDisputed, OrderStatusCancelled)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment:   {OrderStatusDepositPaid, OrderStatusCancelled},
	OrderStatusDepositPaid:      {OrderStatusInProgress, OrderStatusFittingScheduled, OrderStatusFittingApproved, OrderStatusDisputed, OrderStatusCancelled},
	OrderStatusInProgress:       {OrderStatusFittingScheduled, OrderStatusFittingApproved, OrderStatusDisputed},
	OrderStatusFittingScheduled: {OrderStatusFittingApproved, OrderStatusDisputed},
	OrderStatusFittingApproved:  {OrderStatusFinalPaid, OrderStatusCompleted, OrderStatusDisputed},
	OrderStatusFinalPaid:        {OrderStatusCompleted, OrderStatusDisputed},
}

// disputeResolutions are the only ways out of DISPUTED. They are taken by an
// admin resolving the dispute, never by workflow events.
var disputeResolutions = []OrderStatus{
	OrderStatusInProgress,
	OrderStatusFittingApproved,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// milestoneSubmissionStatuses are the order states in which a tailor may upload progress.
var milestoneSubmissionStatuses = []OrderStatus{
	OrderStatusDepositPaid,
	OrderStatusInProgress,
	OrderStatusFittingScheduled,
	OrderStatusFittingApproved,
	OrderStatusFinalPaid,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	return slices.Contains(validOrderStatuses, s)
}

// CanTransitionTo consults the central order transition table.
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	return slices.Contains(orderTransitions[s], to)
}

// IsDisputeResolution reports whether a dispute may be closed into s.
func (s OrderStatus) IsDisputeResolution() bool {
	return slices.Contains(disputeResolutions, s)
}

// IsFrozen reports whether escrow must not move for an order in this state.
func (s OrderStatus) IsFrozen() bool {
	return s == OrderStatusDisputed || s == OrderStatusCancelled
}

// AcceptsMilestones reports whether milestone submissions are allowed in this state.
func (s OrderStatus) AcceptsMilestones() bool {
	return slices.Contains(milestoneSubmissionStatuses, s)
}

// AtOrBeyond reports whether s has already reached target on the happy path.
// Statuses outside the progression never compare as reached.
func (s OrderStatus) AtOrBeyond(target OrderStatus) bool {
	a, b := progressionRank(s), progressionRank(target)
	return a >= 0 && b >= 0 && a >= b
}

// IsTerminal reports whether no further workflow transitions are expected.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

func progressionRank(s OrderStatus) int {
	for idx, candidate := range orderProgression {
		if candidate == s {
			return idx
		}
	}
	return -1
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return parse(validOrderStatuses, value, "order status")
}
