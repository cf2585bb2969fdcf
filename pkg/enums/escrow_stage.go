package enums

import "slices"

// EscrowStage is the payment holding phase of an order.
type EscrowStage string

const (
	EscrowStageDeposit  EscrowStage = "DEPOSIT"
	EscrowStageFitting  EscrowStage = "FITTING"
	EscrowStageFinal    EscrowStage = "FINAL"
	EscrowStageReleased EscrowStage = "RELEASED"
)

var validEscrowStages = []EscrowStage{
	EscrowStageDeposit,
	EscrowStageFitting,
	EscrowStageFinal,
	EscrowStageReleased,
}

// String implements fmt.Stringer.
func (s EscrowStage) String() string {
	return string(s)
}

// IsValid reports whether the value is a known EscrowStage.
func (s EscrowStage) IsValid() bool {
	return s.rank() >= 0
}

// Next returns the stage that follows s. RELEASED has no successor.
func (s EscrowStage) Next() (EscrowStage, bool) {
	idx := s.rank()
	if idx < 0 || idx+1 >= len(validEscrowStages) {
		return "", false
	}
	return validEscrowStages[idx+1], true
}

// CanAdvanceTo reports whether to is the immediate forward successor of s.
func (s EscrowStage) CanAdvanceTo(to EscrowStage) bool {
	next, ok := s.Next()
	return ok && next == to
}

// Before reports whether s comes strictly before other in the escrow sequence.
func (s EscrowStage) Before(other EscrowStage) bool {
	a, b := s.rank(), other.rank()
	return a >= 0 && b >= 0 && a < b
}

// Holding reports whether the stage still has a bucket in escrow.
func (s EscrowStage) Holding() bool {
	return s.IsValid() && s != EscrowStageReleased
}

func (s EscrowStage) rank() int {
	return slices.Index(validEscrowStages, s)
}

// ParseEscrowStage converts raw input into an EscrowStage. Matching is
// case-insensitive so provider references like "deposit" resolve.
func ParseEscrowStage(value string) (EscrowStage, error) {
	return parse(validEscrowStages, value, "escrow stage")
}
