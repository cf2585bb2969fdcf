// Package commission computes the platform's cut of a gross amount. All
// functions are pure.
package commission

import (
	"errors"

	"github.com/shopspring/decimal"
)

const moneyPlaces = 2

var (
	ErrInvalidAmount = errors.New("commission: amount must not be negative")
	ErrInvalidRate   = errors.New("commission: rate must be within [0,1]")
)

type LineItemType string

const (
	LineItemPlatformCommission LineItemType = "PLATFORM_COMMISSION"
	LineItemProcessingFee      LineItemType = "PROCESSING_FEE"
)

type LineItem struct {
	Type   LineItemType    `json:"type"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

// Breakdown is never persisted on its own; it describes a single release.
type Breakdown struct {
	Gross            decimal.Decimal `json:"gross"`
	Rate             decimal.Decimal `json:"rate"`
	CommissionAmount decimal.Decimal `json:"commissionAmount"`
	NetAmount        decimal.Decimal `json:"netAmount"`
	LineItems        []LineItem      `json:"breakdown"`
}

type Direction string

const (
	DirectionRefund     Direction = "REFUND"
	DirectionAdditional Direction = "ADDITIONAL"
	DirectionNone       Direction = "NONE"
)

// Adjustment is the commission delta between an original and a
// dispute-resolved gross amount. A negative Delta is owed back to the tailor.
type Adjustment struct {
	OriginalCommission decimal.Decimal `json:"originalCommission"`
	ResolvedCommission decimal.Decimal `json:"resolvedCommission"`
	Delta              decimal.Decimal `json:"delta"`
	Direction          Direction       `json:"direction"`
}

// Calculate splits gross into commission and net. Each is rounded to cents
// independently, so the two may differ from gross by up to 0.01.
func Calculate(gross, rate decimal.Decimal) (Breakdown, error) {
	if err := validate(gross, rate); err != nil {
		return Breakdown{}, err
	}
	raw := gross.Mul(rate)
	commissionAmount := raw.Round(moneyPlaces)
	return Breakdown{
		Gross:            gross.Round(moneyPlaces),
		Rate:             rate,
		CommissionAmount: commissionAmount,
		NetAmount:        gross.Sub(raw).Round(moneyPlaces),
		LineItems: []LineItem{
			{Type: LineItemPlatformCommission, Rate: rate, Amount: commissionAmount},
		},
	}, nil
}

// CalculateWithProcessingFee adds a processing fee line on top of the
// platform commission. CommissionAmount is the sum of both deductions.
func CalculateWithProcessingFee(gross, rate, feeRate decimal.Decimal) (Breakdown, error) {
	if err := validate(gross, rate); err != nil {
		return Breakdown{}, err
	}
	if !rateInRange(feeRate) || !rateInRange(rate.Add(feeRate)) {
		return Breakdown{}, ErrInvalidRate
	}
	rawCommission := gross.Mul(rate)
	rawFee := gross.Mul(feeRate)
	commissionAmount := rawCommission.Round(moneyPlaces)
	feeAmount := rawFee.Round(moneyPlaces)

	return Breakdown{
		Gross:            gross.Round(moneyPlaces),
		Rate:             rate,
		CommissionAmount: commissionAmount.Add(feeAmount),
		NetAmount:        gross.Sub(rawCommission).Sub(rawFee).Round(moneyPlaces),
		LineItems: []LineItem{
			{Type: LineItemPlatformCommission, Rate: rate, Amount: commissionAmount},
			{Type: LineItemProcessingFee, Rate: feeRate, Amount: feeAmount},
		},
	}, nil
}

// CalculateAdjustment returns the signed commission change when a dispute
// moves the gross from original to resolved.
func CalculateAdjustment(original, resolved, rate decimal.Decimal) (Adjustment, error) {
	before, err := Calculate(original, rate)
	if err != nil {
		return Adjustment{}, err
	}
	after, err := Calculate(resolved, rate)
	if err != nil {
		return Adjustment{}, err
	}
	delta := after.CommissionAmount.Sub(before.CommissionAmount)

	direction := DirectionNone
	switch delta.Sign() {
	case -1:
		direction = DirectionRefund
	case 1:
		direction = DirectionAdditional
	}

	return Adjustment{
		OriginalCommission: before.CommissionAmount,
		ResolvedCommission: after.CommissionAmount,
		Delta:              delta,
		Direction:          direction,
	}, nil
}

// Policy binds the configured rates so callers don't thread them around.
type Policy struct {
	Rate              decimal.Decimal
	ProcessingFeeRate decimal.Decimal
}

// Breakdown applies the policy to gross, adding a processing fee line only
// when a fee rate is configured.
func (p Policy) Breakdown(gross decimal.Decimal) (Breakdown, error) {
	if p.ProcessingFeeRate.IsZero() {
		return Calculate(gross, p.Rate)
	}
	return CalculateWithProcessingFee(gross, p.Rate, p.ProcessingFeeRate)
}

func validate(gross, rate decimal.Decimal) error {
	if gross.IsNegative() {
		return ErrInvalidAmount
	}
	if !rateInRange(rate) {
		return ErrInvalidRate
	}
	return nil
}

func rateInRange(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(decimal.NewFromInt(1))
}
