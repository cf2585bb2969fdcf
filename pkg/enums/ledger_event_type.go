package enums

import "slices"

// LedgerEventType classifies an escrow movement row.
type LedgerEventType string

const (
	LedgerEventTypeEscrowRelease  LedgerEventType = "escrow_release"
	LedgerEventTypeEscrowOverride LedgerEventType = "escrow_override"
)

var validLedgerEventTypes = []LedgerEventType{
	LedgerEventTypeEscrowRelease,
	LedgerEventTypeEscrowOverride,
}

// IsValid reports whether the value matches the canonical ledger event enum.
func (t LedgerEventType) IsValid() bool {
	return slices.Contains(validLedgerEventTypes, t)
}

// ParseLedgerEventType converts raw input into LedgerEventType.
func ParseLedgerEventType(value string) (LedgerEventType, error) {
	return parse(validLedgerEventTypes, value, "ledger event type")
}
