package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/stitchpay-backend/internal/commission"
	"github.com/angelmondragon/stitchpay-backend/internal/ledger"
	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stitchpay-backend/pkg/errors"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
	"github.com/angelmondragon/stitchpay-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrStageMismatch       = errors.New("escrow: stage mismatch")
	ErrInsufficientBalance = errors.New("escrow: insufficient balance")
)

// reconciliationTolerance absorbs independent per-bucket rounding.
var reconciliationTolerance = decimal.RequireFromString("0.01")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns escrow stage and balance. All mutations are conditional
// updates; concurrent advances for one order cannot both succeed.
type Service interface {
	Initialize(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, total decimal.Decimal) (*models.OrderEscrow, error)
	Advance(ctx context.Context, input AdvanceInput) (*models.OrderEscrow, error)
	AdvanceTx(ctx context.Context, tx *gorm.DB, input AdvanceInput) (*models.OrderEscrow, error)
	Validate(ctx context.Context, orderID uuid.UUID) (*ValidationResult, error)
	GetStatus(ctx context.Context, orderID uuid.UUID) (*Status, error)
	GetTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.OrderEscrow, error)
	OverrideTx(ctx context.Context, tx *gorm.DB, input OverrideInput) (*models.OrderEscrow, error)
}

// ServiceParams configure the escrow service.
type ServiceParams struct {
	Repo       Repository
	Ledger     ledger.Service
	DB         txRunner
	Logger     *logger.Logger
	Split      Split
	Commission commission.Policy
	Metrics    *metrics.SettlementMetrics
	Now        func() time.Time
}

type service struct {
	repo       Repository
	ledger     ledger.Service
	db         txRunner
	logg       *logger.Logger
	split      Split
	commission commission.Policy
	metrics    *metrics.SettlementMetrics
	now        func() time.Time
}

// NewService wires the escrow service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("escrow repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	sum := params.Split.DepositPercent.Add(params.Split.FittingPercent).Add(params.Split.FinalPercent)
	if !sum.Equal(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("escrow split must sum to 100, got %s", sum)
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:       params.Repo,
		ledger:     params.Ledger,
		db:         params.DB,
		logg:       params.Logger,
		split:      params.Split,
		commission: params.Commission,
		metrics:    params.Metrics,
		now:        now,
	}, nil
}

// SplitTotal divides total into the three buckets. The final bucket absorbs
// rounding so the buckets always sum to total exactly.
func SplitTotal(total decimal.Decimal, split Split) (deposit, fitting, final decimal.Decimal) {
	hundred := decimal.NewFromInt(100)
	deposit = total.Mul(split.DepositPercent).Div(hundred).Round(2)
	fitting = total.Mul(split.FittingPercent).Div(hundred).Round(2)
	final = total.Sub(deposit).Sub(fitting)
	return deposit, fitting, final
}

func (s *service) Initialize(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, total decimal.Decimal) (*models.OrderEscrow, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !total.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive")
	}
	if !total.Equal(total.Round(2)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must have at most 2 decimal places")
	}

	deposit, fitting, final := SplitTotal(total, s.split)
	escrow := &models.OrderEscrow{
		OrderID:       orderID,
		Stage:         enums.EscrowStageDeposit,
		TotalAmount:   total,
		DepositAmount: deposit,
		FittingAmount: fitting,
		FinalAmount:   final,
		Balance:       total,
	}
	if err := s.repo.WithTx(tx).Create(ctx, escrow); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create escrow")
	}
	return escrow, nil
}

func (s *service) Advance(ctx context.Context, input AdvanceInput) (*models.OrderEscrow, error) {
	var out *models.OrderEscrow
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		escrow, err := s.AdvanceTx(ctx, tx, input)
		if err != nil {
			return err
		}
		out = escrow
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) AdvanceTx(ctx context.Context, tx *gorm.DB, input AdvanceInput) (*models.OrderEscrow, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}
	if !input.From.CanAdvanceTo(input.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("escrow cannot move from %s to %s", input.From, input.To))
	}
	if input.Amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "released amount must not be negative")
	}

	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())
	repo := s.repo.WithTx(tx)

	escrow, err := repo.FindByOrderID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "escrow not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow")
	}
	if escrow.Stage != input.From {
		s.metrics.IncConflict("stage_mismatch")
		return nil, stageMismatch(escrow.Stage, input.From)
	}
	if input.Amount.GreaterThan(escrow.Balance) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, ErrInsufficientBalance, "released amount exceeds escrow balance").
			WithDetails(map[string]any{"balance": escrow.Balance, "requested": input.Amount})
	}
	if bucket := escrow.BucketFor(input.From); input.Amount.GreaterThan(bucket) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "released amount exceeds the stage bucket").
			WithDetails(map[string]any{"bucket": bucket, "requested": input.Amount})
	}

	breakdown, err := s.commission.Breakdown(input.Amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "compute commission")
	}

	releasedAt := s.now()
	balance := escrow.Balance.Sub(input.Amount)
	applied, err := repo.CompareAndAdvance(ctx, StageChange{
		OrderID:    input.OrderID,
		From:       input.From,
		To:         input.To,
		Balance:    balance,
		ReleasedAt: releasedAt,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance escrow")
	}
	if !applied {
		s.metrics.IncConflict("stage_mismatch")
		return nil, stageMismatch("", input.From)
	}

	if _, err := s.ledger.WithTx(tx).RecordEvent(ctx, ledger.RecordLedgerEventInput{
		OrderID:      input.OrderID,
		ActorID:      input.ActorID,
		Type:         enums.LedgerEventTypeEscrowRelease,
		FromStage:    input.From,
		ToStage:      input.To,
		Amount:       input.Amount,
		Breakdown:    breakdown,
		BalanceAfter: balance,
		Metadata:     input.Metadata,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record escrow release")
	}

	escrow.Stage = input.To
	escrow.Balance = balance
	stampRelease(escrow, input.From, releasedAt)

	s.metrics.ObserveRelease(input.From.String(), input.Amount.InexactFloat64())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"from_stage": input.From,
		"to_stage":   input.To,
		"released":   input.Amount.StringFixed(2),
		"balance":    balance.StringFixed(2),
	}), "escrow advanced")
	return escrow, nil
}

func (s *service) Validate(ctx context.Context, orderID uuid.UUID) (*ValidationResult, error) {
	escrow, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{
		OrderID:       orderID,
		StoredBalance: escrow.Balance,
		Errors:        []string{},
	}

	released := decimal.Zero
	for _, stage := range []enums.EscrowStage{enums.EscrowStageDeposit, enums.EscrowStageFitting, enums.EscrowStageFinal} {
		stamped := escrow.ReleasedAt(stage) != nil
		shouldBeReleased := stage.Before(escrow.Stage)
		switch {
		case shouldBeReleased && !stamped:
			result.Errors = append(result.Errors, fmt.Sprintf("%s bucket has no release timestamp but stage is %s", stage, escrow.Stage))
		case !shouldBeReleased && stamped:
			result.Errors = append(result.Errors, fmt.Sprintf("%s bucket is stamped released but stage is %s", stage, escrow.Stage))
		}
		if stamped {
			released = released.Add(escrow.BucketFor(stage))
		}
	}

	bucketSum := escrow.DepositAmount.Add(escrow.FittingAmount).Add(escrow.FinalAmount)
	if !bucketSum.Equal(escrow.TotalAmount) {
		result.Errors = append(result.Errors, fmt.Sprintf("buckets sum to %s, total is %s", bucketSum.StringFixed(2), escrow.TotalAmount.StringFixed(2)))
	}
	if escrow.Balance.IsNegative() {
		result.Errors = append(result.Errors, "balance is negative")
	}

	result.ExpectedBalance = escrow.TotalAmount.Sub(released)
	if result.ExpectedBalance.Sub(escrow.Balance).Abs().GreaterThan(reconciliationTolerance) {
		result.Errors = append(result.Errors, fmt.Sprintf("stored balance %s does not match expected %s", escrow.Balance.StringFixed(2), result.ExpectedBalance.StringFixed(2)))
	}

	result.IsValid = len(result.Errors) == 0
	if !result.IsValid {
		s.metrics.IncReconciliationFailure()
		s.logg.Error(s.logg.WithOrderID(ctx, orderID.String()), "escrow reconciliation mismatch",
			pkgerrors.New(pkgerrors.CodeDataIntegrity, strings.Join(result.Errors, "; ")))
	}
	return result, nil
}

func (s *service) GetStatus(ctx context.Context, orderID uuid.UUID) (*Status, error) {
	escrow, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	events, err := s.ledger.ListForOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow history")
	}
	return &Status{
		OrderID:         orderID,
		CurrentStage:    escrow.Stage,
		TotalAmount:     escrow.TotalAmount,
		Balance:         escrow.Balance,
		NextStageAmount: escrow.BucketFor(escrow.Stage),
		Buckets:         bucketsFor(escrow),
		StageHistory:    historyFrom(events),
	}, nil
}

func (s *service) GetTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.OrderEscrow, error) {
	return s.loadWith(ctx, s.repo.WithTx(tx), orderID)
}

func (s *service) OverrideTx(ctx context.Context, tx *gorm.DB, input OverrideInput) (*models.OrderEscrow, error) {
	if input.OrderID == uuid.Nil || input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and actor id required")
	}
	if !input.Stage.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid escrow stage")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "override reason required")
	}

	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())
	repo := s.repo.WithTx(tx)
	escrow, err := repo.FindByOrderID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "escrow not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow")
	}

	now := s.now()
	previous := escrow.Stage
	previousBalance := escrow.Balance
	released := decimal.Zero
	stamps := map[enums.EscrowStage]*time.Time{}
	for _, stage := range []enums.EscrowStage{enums.EscrowStageDeposit, enums.EscrowStageFitting, enums.EscrowStageFinal} {
		if !stage.Before(input.Stage) {
			stamps[stage] = nil
			continue
		}
		released = released.Add(escrow.BucketFor(stage))
		if existing := escrow.ReleasedAt(stage); existing != nil {
			stamps[stage] = existing
		} else {
			stamped := now
			stamps[stage] = &stamped
		}
	}
	balance := escrow.TotalAmount.Sub(released)

	update := OverrideUpdate{
		From:              previous,
		Stage:             input.Stage,
		Balance:           balance,
		DepositReleasedAt: stamps[enums.EscrowStageDeposit],
		FittingReleasedAt: stamps[enums.EscrowStageFitting],
		FinalReleasedAt:   stamps[enums.EscrowStageFinal],
	}
	applied, err := repo.Override(ctx, input.OrderID, update)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "override escrow")
	}
	if !applied {
		return nil, stageMismatch("", previous)
	}

	if _, err := s.ledger.WithTx(tx).RecordEvent(ctx, ledger.RecordLedgerEventInput{
		OrderID:      input.OrderID,
		ActorID:      input.ActorID,
		Type:         enums.LedgerEventTypeEscrowOverride,
		FromStage:    previous,
		ToStage:      input.Stage,
		Amount:       previousBalance.Sub(balance).Abs(),
		BalanceAfter: balance,
		Metadata: map[string]any{
			"reason":           input.Reason,
			"previous_balance": previousBalance,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record escrow override")
	}

	escrow.Stage = update.Stage
	escrow.Balance = update.Balance
	escrow.DepositReleasedAt = update.DepositReleasedAt
	escrow.FittingReleasedAt = update.FittingReleasedAt
	escrow.FinalReleasedAt = update.FinalReleasedAt

	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"from_stage": previous,
		"to_stage":   input.Stage,
		"balance":    balance.StringFixed(2),
		"reason":     input.Reason,
	}), "escrow overridden by dispute resolution")
	return escrow, nil
}

func (s *service) load(ctx context.Context, orderID uuid.UUID) (*models.OrderEscrow, error) {
	return s.loadWith(ctx, s.repo, orderID)
}

func (s *service) loadWith(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.OrderEscrow, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	escrow, err := repo.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "escrow not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow")
	}
	return escrow, nil
}

func stageMismatch(actual, expected enums.EscrowStage) error {
	details := map[string]any{"expected": expected}
	if actual != "" {
		details["actual"] = actual
	}
	return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrStageMismatch, "escrow stage changed concurrently").WithDetails(details)
}

func stampRelease(escrow *models.OrderEscrow, stage enums.EscrowStage, at time.Time) {
	switch stage {
	case enums.EscrowStageDeposit:
		escrow.DepositReleasedAt = &at
	case enums.EscrowStageFitting:
		escrow.FittingReleasedAt = &at
	case enums.EscrowStageFinal:
		escrow.FinalReleasedAt = &at
	}
}
