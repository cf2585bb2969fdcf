package enums

// MilestoneType is one of the ordered production checkpoints a tailor reports.
type MilestoneType string

const (
	MilestoneFabricSelected      MilestoneType = "FABRIC_SELECTED"
	MilestoneCuttingStarted      MilestoneType = "CUTTING_STARTED"
	MilestoneStitchingInProgress MilestoneType = "STITCHING_IN_PROGRESS"
	MilestoneFittingReady        MilestoneType = "FITTING_READY"
	MilestoneAlterationsComplete MilestoneType = "ALTERATIONS_COMPLETE"
	MilestoneFinalPressing       MilestoneType = "FINAL_PRESSING"
	MilestoneReadyForDelivery    MilestoneType = "READY_FOR_DELIVERY"
)

var orderedMilestoneTypes = []MilestoneType{
	MilestoneFabricSelected,
	MilestoneCuttingStarted,
	MilestoneStitchingInProgress,
	MilestoneFittingReady,
	MilestoneAlterationsComplete,
	MilestoneFinalPressing,
	MilestoneReadyForDelivery,
}

// MilestoneTypes returns the milestone types in production order.
func MilestoneTypes() []MilestoneType {
	out := make([]MilestoneType, len(orderedMilestoneTypes))
	copy(out, orderedMilestoneTypes)
	return out
}

// String implements fmt.Stringer.
func (m MilestoneType) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MilestoneType.
func (m MilestoneType) IsValid() bool {
	return m.Position() > 0
}

// Position returns the 1-based production order of the milestone, 0 when unknown.
func (m MilestoneType) Position() int {
	for idx, candidate := range orderedMilestoneTypes {
		if candidate == m {
			return idx + 1
		}
	}
	return 0
}

// IsFitting reports whether this is the milestone that releases the fitting bucket.
func (m MilestoneType) IsFitting() bool {
	return m == MilestoneFittingReady
}

// IsFinal reports whether this is the milestone that releases the final bucket.
func (m MilestoneType) IsFinal() bool {
	return m == MilestoneReadyForDelivery
}

// ParseMilestoneType converts raw input into a MilestoneType.
func ParseMilestoneType(value string) (MilestoneType, error) {
	return parse(orderedMilestoneTypes, value, "milestone type")
}
