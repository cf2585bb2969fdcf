package paymentwebhook

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/stitchpay-backend/internal/orders"
	"github.com/angelmondragon/stitchpay-backend/internal/payments"
	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stitchpay-backend/pkg/errors"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
	"github.com/angelmondragon/stitchpay-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type transactionRecorder interface {
	FindTx(ctx context.Context, tx *gorm.DB, transactionID string) (*models.PaymentTransaction, error)
	RecordTx(ctx context.Context, tx *gorm.DB, input payments.RecordInput) (*models.PaymentTransaction, error)
}

type paymentConfirmer interface {
	OnPaymentConfirmed(ctx context.Context, confirmation orders.PaymentConfirmation) (*orders.Outcome, error)
}

// Event is a verified, schema-checked provider callback.
type Event struct {
	Provider      string
	TransactionID string
	Status        enums.PaymentStatus
	Amount        decimal.Decimal
	Reference     string
}

// Result reports how the callback was handled.
type Result struct {
	Duplicate bool            `json:"duplicate"`
	Stale     bool            `json:"stale,omitempty"`
	OrderID   uuid.UUID       `json:"orderId"`
	Stage     string          `json:"stage"`
	Outcome   *orders.Outcome `json:"outcome,omitempty"`
}

type ServiceParams struct {
	DB           txRunner
	Transactions transactionRecorder
	Receipts     ReceiptRepository
	Orders       paymentConfirmer
	Guard        Guard
	Logger       *logger.Logger
	Metrics      *metrics.SettlementMetrics
}

type Service struct {
	db           txRunner
	transactions transactionRecorder
	receipts     ReceiptRepository
	orders       paymentConfirmer
	guard        Guard
	logg         *logger.Logger
	metrics      *metrics.SettlementMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Transactions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment transactions required")
	}
	if params.Receipts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "receipt repository required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order orchestrator required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook guard required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		db:           params.DB,
		transactions: params.Transactions,
		receipts:     params.Receipts,
		orders:       params.Orders,
		guard:        params.Guard,
		logg:         params.Logger,
		metrics:      params.Metrics,
	}, nil
}

// Process records the callback and, for successful payments, hands it to the
// orchestrator. Exact (transaction, status) repeats are acknowledged without
// side effects.
func (s *Service) Process(ctx context.Context, event Event) (*Result, error) {
	txID := strings.TrimSpace(event.TransactionID)
	if txID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if !event.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment status %q", event.Status))
	}
	provider := event.Provider
	if provider == "" {
		provider = payments.ProviderSquare
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"transaction_id": txID,
		"payment_status": event.Status,
	})

	seen, err := s.guard.Seen(ctx, txID, event.Status)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook guard lookup failed")
	}
	if seen {
		s.metrics.IncWebhook("duplicate")
		return &Result{Duplicate: true}, nil
	}

	result := &Result{}
	var stored *models.PaymentTransaction
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		existing, err := s.transactions.FindTx(ctx, tx, txID)
		if err != nil {
			return err
		}
		input := payments.RecordInput{
			TransactionID: txID,
			Provider:      provider,
			Amount:        event.Amount,
			Status:        event.Status,
			Reference:     event.Reference,
		}
		if existing != nil {
			input.OrderID, input.Stage, input.Amount, input.Reference = existing.OrderID, existing.EscrowStage, existing.Amount, existing.Reference
		} else {
			orderID, stage, err := payments.ParseReference(event.Reference)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown transaction and unusable reference")
			}
			input.OrderID, input.Stage = orderID, stage
		}

		orderID := input.OrderID
		result.OrderID = orderID
		result.Stage = input.Stage.String()
		inserted, err := s.receipts.WithTx(tx).Insert(ctx, &models.WebhookReceipt{
			Provider:      provider,
			TransactionID: txID,
			Status:        event.Status,
			OrderID:       &orderID,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook receipt")
		}
		if !inserted {
			result.Duplicate = true
			return nil
		}

		stored, err = s.transactions.RecordTx(ctx, tx, input)
		if err != nil {
			return err
		}
		result.Stale = stored.Status != event.Status
		return nil
	})
	if err != nil {
		s.metrics.IncWebhook("failed")
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, result.OrderID.String())
	if result.Duplicate {
		s.markSeen(ctx, txID, event.Status)
		s.metrics.IncWebhook("duplicate")
		s.logg.Info(ctx, "payment webhook already processed")
		return result, nil
	}
	if result.Stale {
		s.markSeen(ctx, txID, event.Status)
		s.metrics.IncWebhook("stale")
		s.logg.Warn(s.logg.WithField(ctx, "stored_status", stored.Status), "payment webhook arrived after a final status")
		return result, nil
	}

	if event.Status == enums.PaymentStatusSuccess {
		outcome, err := s.orders.OnPaymentConfirmed(ctx, orders.PaymentConfirmation{
			TransactionID: txID,
			OrderID:       stored.OrderID,
			Stage:         stored.EscrowStage,
			Amount:        stored.Amount,
		})
		if err != nil {
			if delErr := s.receipts.Delete(ctx, txID, event.Status); delErr != nil {
				s.logg.Error(ctx, "failed to release webhook receipt", delErr)
			}
			s.metrics.IncWebhook("failed")
			return nil, err
		}
		result.Outcome = outcome
	}

	s.markSeen(ctx, txID, event.Status)
	s.metrics.IncWebhook("processed")
	s.logg.Info(ctx, "payment webhook processed")
	return result, nil
}

func (s *Service) markSeen(ctx context.Context, txID string, status enums.PaymentStatus) {
	if err := s.guard.MarkSeen(ctx, txID, status); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook guard update failed")
	}
}
