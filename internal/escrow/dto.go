package escrow

import (
	"time"

	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Split is the stage percentage policy applied at order creation.
type Split struct {
	DepositPercent decimal.Decimal
	FittingPercent decimal.Decimal
	FinalPercent   decimal.Decimal
}

// AdvanceInput releases the bucket of From and moves the escrow to To.
type AdvanceInput struct {
	OrderID  uuid.UUID
	From     enums.EscrowStage
	To       enums.EscrowStage
	Amount   decimal.Decimal
	ActorID  uuid.UUID
	Metadata map[string]any
}

// OverrideInput is the dispute-resolution hook. It may move the stage backward.
type OverrideInput struct {
	OrderID uuid.UUID
	Stage   enums.EscrowStage
	ActorID uuid.UUID
	Reason  string
}

// ValidationResult is the advisory outcome of a reconciliation check.
type ValidationResult struct {
	OrderID         uuid.UUID       `json:"orderId"`
	IsValid         bool            `json:"isValid"`
	Errors          []string        `json:"errors"`
	StoredBalance   decimal.Decimal `json:"storedBalance"`
	ExpectedBalance decimal.Decimal `json:"expectedBalance"`
}

// Status is the client-facing projection of an order's escrow.
type Status struct {
	OrderID         uuid.UUID         `json:"orderId"`
	CurrentStage    enums.EscrowStage `json:"currentStage"`
	TotalAmount     decimal.Decimal   `json:"totalAmount"`
	Balance         decimal.Decimal   `json:"balance"`
	NextStageAmount decimal.Decimal   `json:"nextStageAmount"`
	Buckets         []Bucket          `json:"buckets"`
	StageHistory    []HistoryEntry    `json:"stageHistory"`
}

type Bucket struct {
	Stage      enums.EscrowStage `json:"stage"`
	Amount     decimal.Decimal   `json:"amount"`
	ReleasedAt *time.Time        `json:"releasedAt,omitempty"`
}

type HistoryEntry struct {
	Type             enums.LedgerEventType `json:"type"`
	FromStage        enums.EscrowStage     `json:"fromStage"`
	ToStage          enums.EscrowStage     `json:"toStage"`
	Amount           decimal.Decimal       `json:"amount"`
	CommissionAmount decimal.Decimal       `json:"commissionAmount"`
	NetAmount        decimal.Decimal       `json:"netAmount"`
	BalanceAfter     decimal.Decimal       `json:"balanceAfter"`
	At               time.Time             `json:"at"`
}

func bucketsFor(escrow *models.OrderEscrow) []Bucket {
	stages := []enums.EscrowStage{enums.EscrowStageDeposit, enums.EscrowStageFitting, enums.EscrowStageFinal}
	out := make([]Bucket, 0, len(stages))
	for _, stage := range stages {
		out = append(out, Bucket{
			Stage:      stage,
			Amount:     escrow.BucketFor(stage),
			ReleasedAt: escrow.ReleasedAt(stage),
		})
	}
	return out
}

func historyFrom(events []models.LedgerEvent) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(events))
	for _, event := range events {
		out = append(out, HistoryEntry{
			Type:             event.Type,
			FromStage:        event.FromStage,
			ToStage:          event.ToStage,
			Amount:           event.Amount,
			CommissionAmount: event.CommissionAmount,
			NetAmount:        event.NetAmount,
			BalanceAfter:     event.BalanceAfter,
			At:               event.CreatedAt,
		})
	}
	return out
}
