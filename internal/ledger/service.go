package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/stitchpay-backend/internal/commission"
	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service defines operations that record escrow movements.
type Service interface {
	WithTx(tx *gorm.DB) Service
	RecordEvent(ctx context.Context, input RecordLedgerEventInput) (*models.LedgerEvent, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error)
}

type service struct {
	repo Repository
}

// RecordLedgerEventInput captures the immutable data a ledger event requires.
type RecordLedgerEventInput struct {
	OrderID      uuid.UUID             `json:"order_id"`
	ActorID      uuid.UUID             `json:"actor_id"`
	Type         enums.LedgerEventType `json:"type"`
	FromStage    enums.EscrowStage     `json:"from_stage"`
	ToStage      enums.EscrowStage     `json:"to_stage"`
	Amount       decimal.Decimal       `json:"amount"`
	Breakdown    commission.Breakdown  `json:"breakdown"`
	BalanceAfter decimal.Decimal       `json:"balance_after"`
	Metadata     map[string]any        `json:"metadata,omitempty"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) RecordEvent(ctx context.Context, input RecordLedgerEventInput) (*models.LedgerEvent, error) {
	if input.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if input.ActorID == uuid.Nil {
		return nil, fmt.Errorf("actor id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid ledger event type %q", input.Type)
	}
	if !input.FromStage.IsValid() || !input.ToStage.IsValid() {
		return nil, fmt.Errorf("invalid escrow stages %q -> %q", input.FromStage, input.ToStage)
	}
	if input.Amount.IsNegative() {
		return nil, fmt.Errorf("ledger amount must not be negative")
	}

	metadata, err := buildMetadata(input)
	if err != nil {
		return nil, err
	}

	event := &models.LedgerEvent{
		OrderID:          input.OrderID,
		ActorID:          input.ActorID,
		Type:             input.Type,
		FromStage:        input.FromStage,
		ToStage:          input.ToStage,
		Amount:           input.Amount,
		CommissionAmount: input.Breakdown.CommissionAmount,
		NetAmount:        input.Breakdown.NetAmount,
		BalanceAfter:     input.BalanceAfter,
		Metadata:         metadata,
	}

	if err := s.repo.Append(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *service) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	return s.repo.ListByOrderID(ctx, orderID)
}

func buildMetadata(input RecordLedgerEventInput) (json.RawMessage, error) {
	payload := map[string]any{
		"commission_rate": input.Breakdown.Rate,
		"line_items":      input.Breakdown.LineItems,
	}
	for k, v := range input.Metadata {
		payload[k] = v
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal ledger metadata: %w", err)
	}
	return raw, nil
}
