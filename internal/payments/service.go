package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stitchpay-backend/pkg/errors"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultRequestTimeout = 10 * time.Second

// InitiateInput requests collection of one escrow stage from the customer.
type InitiateInput struct {
	OrderID     uuid.UUID
	Stage       enums.EscrowStage
	Amount      decimal.Decimal
	CustomerRef string
	SourceID    *string
}

// RecordInput is a provider-reported transaction state.
type RecordInput struct {
	TransactionID string
	Provider      string
	OrderID       uuid.UUID
	Stage         enums.EscrowStage
	Amount        decimal.Decimal
	Status        enums.PaymentStatus
	Reference     string
	PaymentURL    string
}

// Service initiates stage payments and mirrors provider transactions.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*models.PaymentTransaction, error)
	RecordTx(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.PaymentTransaction, error)
	FindTx(ctx context.Context, tx *gorm.DB, transactionID string) (*models.PaymentTransaction, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error)
}

type ServiceParams struct {
	Repo    Repository
	Gateway Gateway
	Logger  *logger.Logger
	Timeout time.Duration
}

type service struct {
	repo    Repository
	gateway Gateway
	logg    *logger.Logger
	timeout time.Duration
}

// NewService wires payment initiation and transaction bookkeeping.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &service{repo: params.Repo, gateway: params.Gateway, logg: params.Logger, timeout: timeout}, nil
}

func (s *service) Initiate(ctx context.Context, input InitiateInput) (*models.PaymentTransaction, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Stage.IsValid() || !input.Stage.Holding() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cannot collect payment for stage %q", input.Stage))
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	if input.SourceID == nil || strings.TrimSpace(*input.SourceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no payment source on file")
	}

	reference := Reference(input.OrderID, input.Stage)
	ctx = s.logg.WithFields(s.logg.WithOrderID(ctx, input.OrderID.String()), map[string]any{
		"stage":     input.Stage,
		"reference": reference,
	})

	chargeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result, err := s.gateway.Charge(chargeCtx, ChargeRequest{
		Amount:         input.Amount,
		CustomerRef:    input.CustomerRef,
		SourceID:       strings.TrimSpace(*input.SourceID),
		Reference:      reference,
		IdempotencyKey: idempotencyKey(input.OrderID, input.Stage),
		Note:           fmt.Sprintf("%s stage payment", strings.ToLower(input.Stage.String())),
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "initiate payment")
	}

	txn, err := s.RecordTx(ctx, nil, RecordInput{
		TransactionID: result.TransactionID,
		Provider:      s.gateway.Provider(),
		OrderID:       input.OrderID,
		Stage:         input.Stage,
		Amount:        input.Amount,
		Status:        result.Status,
		Reference:     reference,
		PaymentURL:    result.PaymentURL,
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "transaction_id", txn.TransactionID), "stage payment initiated")
	return txn, nil
}

func (s *service) RecordTx(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.PaymentTransaction, error) {
	if strings.TrimSpace(input.TransactionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment status %q", input.Status))
	}
	if input.OrderID == uuid.Nil || !input.Stage.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order and stage required")
	}
	reference := input.Reference
	if reference == "" {
		reference = Reference(input.OrderID, input.Stage)
	}
	txn := &models.PaymentTransaction{
		TransactionID: input.TransactionID,
		Provider:      input.Provider,
		OrderID:       input.OrderID,
		EscrowStage:   input.Stage,
		Amount:        input.Amount,
		Status:        input.Status,
		Reference:     reference,
	}
	if input.PaymentURL != "" {
		url := input.PaymentURL
		txn.PaymentURL = &url
	}
	repo := s.repo.WithTx(tx)
	existing, err := s.FindTx(ctx, tx, input.TransactionID)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.Status.CanTransitionTo(input.Status) {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"transaction_id": input.TransactionID,
			"stored_status":  existing.Status,
			"payment_status": input.Status,
		}), "payment status regression ignored")
		return existing, nil
	}
	if err := repo.Upsert(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment transaction")
	}
	stored, err := repo.FindByTransactionID(ctx, input.TransactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment transaction")
	}
	return stored, nil
}

func (s *service) FindTx(ctx context.Context, tx *gorm.DB, transactionID string) (*models.PaymentTransaction, error) {
	txn, err := s.repo.WithTx(tx).FindByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	return txn, nil
}

func (s *service) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error) {
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment transactions")
	}
	return rows, nil
}
