package orders

import (
	"github.com/angelmondragon/stitchpay-backend/pkg/auth"
	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateInput is the checkout hand-off that opens an order and its escrow.
type CreateInput struct {
	CustomerID      uuid.UUID
	TailorID        uuid.UUID
	TotalAmount     decimal.Decimal
	CustomerContact string
	PaymentSourceID *string
	Actor           auth.Actor
}

// CreateResult carries the new order, its escrow and the deposit charge when
// one could be initiated.
type CreateResult struct {
	Order   *models.Order              `json:"order"`
	Escrow  *models.OrderEscrow        `json:"escrow"`
	Deposit *models.PaymentTransaction `json:"deposit,omitempty"`
}

// MilestoneEvent describes a milestone that was just submitted or resolved.
type MilestoneEvent struct {
	OrderID     uuid.UUID
	MilestoneID uuid.UUID
	Milestone   enums.MilestoneType
	Status      enums.ApprovalStatus
	ActorID     uuid.UUID
}

// PaymentConfirmation is a provider-confirmed successful payment.
type PaymentConfirmation struct {
	TransactionID string
	OrderID       uuid.UUID
	Stage         enums.EscrowStage
	Amount        decimal.Decimal
}

// Outcome reports what orchestration changed. Advanced is false when the
// escrow had already moved, which makes replays harmless.
type Outcome struct {
	OrderID     uuid.UUID                  `json:"orderId"`
	OrderStatus enums.OrderStatus          `json:"orderStatus"`
	EscrowStage enums.EscrowStage          `json:"escrowStage,omitempty"`
	Released    decimal.Decimal            `json:"released"`
	Advanced    bool                       `json:"advanced"`
	Payment     *models.PaymentTransaction `json:"payment,omitempty"`
}

// DisputeInput opens a dispute on an order.
type DisputeInput struct {
	OrderID uuid.UUID
	Actor   auth.Actor
	Reason  string
}

// ResolveDisputeInput closes a dispute, optionally rewinding the escrow.
type ResolveDisputeInput struct {
	OrderID     uuid.UUID
	Actor       auth.Actor
	EscrowStage enums.EscrowStage
	Status      enums.OrderStatus
	Reason      string
}
