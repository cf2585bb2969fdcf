package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	"github.com/angelmondragon/stitchpay-backend/pkg/square"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const ProviderSquare = "square"

// ChargeRequest asks the provider to collect one escrow stage.
type ChargeRequest struct {
	Amount         decimal.Decimal
	CustomerRef    string
	SourceID       string
	Reference      string
	IdempotencyKey string
	Note           string
}

// ChargeResult is the provider's synchronous answer. Final confirmation
// still arrives by webhook.
type ChargeResult struct {
	TransactionID string
	Status        enums.PaymentStatus
	PaymentURL    string
}

// Gateway is a payment provider.
type Gateway interface {
	Provider() string
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

type squareCharger interface {
	Charge(ctx context.Context, charge square.StageCharge) (*square.Receipt, error)
}

// SquareGateway charges a customer's card on file through Square.
type SquareGateway struct {
	client   squareCharger
	currency string
}

func NewSquareGateway(client squareCharger, currency string) (*SquareGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("square client required")
	}
	if strings.TrimSpace(currency) == "" {
		currency = "USD"
	}
	return &SquareGateway{client: client, currency: currency}, nil
}

func (g *SquareGateway) Provider() string { return ProviderSquare }

func (g *SquareGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	receipt, err := g.client.Charge(ctx, square.StageCharge{
		Amount:         req.Amount,
		Currency:       g.currency,
		SourceID:       req.SourceID,
		CustomerID:     req.CustomerRef,
		Reference:      req.Reference,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	if receipt == nil || receipt.PaymentID == "" {
		return nil, fmt.Errorf("square returned no payment id")
	}
	return &ChargeResult{
		TransactionID: receipt.PaymentID,
		Status:        MapSquareStatus(receipt.Status),
		PaymentURL:    receipt.ReceiptURL,
	}, nil
}

// MapSquareStatus folds Square payment statuses onto ours.
func MapSquareStatus(status string) enums.PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETED":
		return enums.PaymentStatusSuccess
	case "FAILED":
		return enums.PaymentStatusFailed
	case "CANCELED", "CANCELLED":
		return enums.PaymentStatusCancelled
	default:
		return enums.PaymentStatusPending
	}
}

const ProviderManual = "manual"

// ManualGateway records charges as pending without calling a provider.
// Used when no Square credentials are configured; confirmation must come
// from the payment webhook.
type ManualGateway struct{}

func (ManualGateway) Provider() string { return ProviderManual }

func (ManualGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if strings.TrimSpace(req.Reference) == "" {
		return nil, fmt.Errorf("reference required")
	}
	return &ChargeResult{
		TransactionID: ProviderManual + "_" + uuid.NewString(),
		Status:        enums.PaymentStatusPending,
	}, nil
}
