package escrow

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/stitchpay-backend/internal/commission"
	"github.com/angelmondragon/stitchpay-backend/internal/ledger"
	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stitchpay-backend/pkg/errors"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type memoryRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.OrderEscrow
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[uuid.UUID]models.OrderEscrow{}}
}

func (m *memoryRepo) WithTx(tx *gorm.DB) Repository { return m }

func (m *memoryRepo) Create(ctx context.Context, escrow *models.OrderEscrow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[escrow.OrderID] = *escrow
	return nil
}

func (m *memoryRepo) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.OrderEscrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &row, nil
}

func (m *memoryRepo) CompareAndAdvance(ctx context.Context, change StageChange) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[change.OrderID]
	if !ok || row.Stage != change.From {
		return false, nil
	}
	row.Stage = change.To
	row.Balance = change.Balance
	stampRelease(&row, change.From, change.ReleasedAt)
	m.rows[change.OrderID] = row
	return true, nil
}

func (m *memoryRepo) Override(ctx context.Context, orderID uuid.UUID, updates OverrideUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[orderID]
	if !ok || row.Stage != updates.From {
		return false, nil
	}
	row.Stage = updates.Stage
	row.Balance = updates.Balance
	row.DepositReleasedAt = updates.DepositReleasedAt
	row.FittingReleasedAt = updates.FittingReleasedAt
	row.FinalReleasedAt = updates.FinalReleasedAt
	m.rows[orderID] = row
	return true, nil
}

// movingRepo advances the stored row right after it is read, as a concurrent
// release would.
type movingRepo struct {
	*memoryRepo
	to enums.EscrowStage
}

func (m *movingRepo) WithTx(tx *gorm.DB) Repository { return m }

func (m *movingRepo) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.OrderEscrow, error) {
	row, err := m.memoryRepo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	moved := m.rows[orderID]
	moved.Stage = m.to
	m.rows[orderID] = moved
	m.mu.Unlock()
	return row, nil
}

type stubLedger struct {
	mu     sync.Mutex
	events []ledger.RecordLedgerEventInput
	err    error
}

func (s *stubLedger) WithTx(tx *gorm.DB) ledger.Service { return s }

func (s *stubLedger) RecordEvent(ctx context.Context, input ledger.RecordLedgerEventInput) (*models.LedgerEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.events = append(s.events, input)
	return &models.LedgerEvent{OrderID: input.OrderID, Type: input.Type}, nil
}

func (s *stubLedger) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error) {
	return nil, nil
}

type inlineTx struct{}

func (inlineTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func defaultSplit() Split {
	return Split{
		DepositPercent: decimal.NewFromInt(25),
		FittingPercent: decimal.NewFromInt(50),
		FinalPercent:   decimal.NewFromInt(25),
	}
}

func newTestService(t *testing.T, repo Repository, led ledger.Service) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:       repo,
		Ledger:     led,
		DB:         inlineTx{},
		Logger:     testLogger(),
		Split:      defaultSplit(),
		Commission: commission.Policy{Rate: decimal.RequireFromString("0.20")},
		Now:        fixedNow,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestSplitTotal(t *testing.T) {
	deposit, fitting, final := SplitTotal(decimal.RequireFromString("250.00"), defaultSplit())
	if !deposit.Equal(decimal.RequireFromString("62.50")) || !fitting.Equal(decimal.NewFromInt(125)) || !final.Equal(decimal.RequireFromString("62.50")) {
		t.Fatalf("unexpected split %s/%s/%s", deposit, fitting, final)
	}

	deposit, fitting, final = SplitTotal(decimal.RequireFromString("100.01"), defaultSplit())
	if !deposit.Add(fitting).Add(final).Equal(decimal.RequireFromString("100.01")) {
		t.Fatalf("buckets must sum to total, got %s+%s+%s", deposit, fitting, final)
	}
}

func TestNewServiceRejectsBadSplit(t *testing.T) {
	_, err := NewService(ServiceParams{
		Repo:   newMemoryRepo(),
		Ledger: &stubLedger{},
		DB:     inlineTx{},
		Logger: testLogger(),
		Split:  Split{DepositPercent: decimal.NewFromInt(30), FittingPercent: decimal.NewFromInt(30), FinalPercent: decimal.NewFromInt(30)},
	})
	if err == nil {
		t.Fatalf("expected split validation error")
	}
}

func TestInitializeValidatesTotal(t *testing.T) {
	svc := newTestService(t, newMemoryRepo(), &stubLedger{})
	if _, err := svc.Initialize(context.Background(), nil, uuid.New(), decimal.Zero); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for zero total, got %v", err)
	}
	if _, err := svc.Initialize(context.Background(), nil, uuid.New(), decimal.RequireFromString("10.001")); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for sub-cent total, got %v", err)
	}
}

func TestAdvanceGuards(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	led := &stubLedger{}
	svc := newTestService(t, repo, led)
	orderID := uuid.New()
	if _, err := svc.Initialize(ctx, nil, orderID, decimal.NewFromInt(250)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	actor := uuid.New()

	_, err := svc.Advance(ctx, AdvanceInput{OrderID: orderID, From: enums.EscrowStageFitting, To: enums.EscrowStageFinal, Amount: decimal.NewFromInt(125), ActorID: actor})
	if !errors.Is(err, ErrStageMismatch) {
		t.Fatalf("expected ErrStageMismatch, got %v", err)
	}

	_, err = svc.Advance(ctx, AdvanceInput{OrderID: orderID, From: enums.EscrowStageDeposit, To: enums.EscrowStageFinal, Amount: decimal.NewFromInt(1), ActorID: actor})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected skipped stage to be rejected, got %v", err)
	}

	_, err = svc.Advance(ctx, AdvanceInput{OrderID: orderID, From: enums.EscrowStageDeposit, To: enums.EscrowStageFitting, Amount: decimal.NewFromInt(300), ActorID: actor})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	_, err = svc.Advance(ctx, AdvanceInput{OrderID: orderID, From: enums.EscrowStageDeposit, To: enums.EscrowStageFitting, Amount: decimal.NewFromInt(100), ActorID: actor})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected amount above bucket to be rejected, got %v", err)
	}

	if len(led.events) != 0 {
		t.Fatalf("failed advances must not record ledger events")
	}
	row, _ := repo.FindByOrderID(ctx, orderID)
	if row.Stage != enums.EscrowStageDeposit || !row.Balance.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("failed advances must not change state: %+v", row)
	}
}

func TestAdvanceConcurrentCallsApplyOnce(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	led := &stubLedger{}
	svc := newTestService(t, repo, led)
	orderID := uuid.New()
	if _, err := svc.Initialize(ctx, nil, orderID, decimal.NewFromInt(250)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := svc.Advance(ctx, AdvanceInput{OrderID: orderID, From: enums.EscrowStageDeposit, To: enums.EscrowStageFitting, Amount: decimal.RequireFromString("62.50"), ActorID: uuid.New()}); err != nil {
		t.Fatalf("deposit advance: %v", err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Advance(ctx, AdvanceInput{
				OrderID: orderID,
				From:    enums.EscrowStageFitting,
				To:      enums.EscrowStageFinal,
				Amount:  decimal.NewFromInt(125),
				ActorID: uuid.New(),
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, mismatched := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrStageMismatch):
			mismatched++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || mismatched != attempts-1 {
		t.Fatalf("expected exactly one success, got %d successes and %d mismatches", succeeded, mismatched)
	}

	row, _ := repo.FindByOrderID(ctx, orderID)
	if !row.Balance.Equal(decimal.RequireFromString("62.50")) {
		t.Fatalf("balance must be decremented once, got %s", row.Balance)
	}
	if len(led.events) != 2 {
		t.Fatalf("expected two ledger events, got %d", len(led.events))
	}
}

func TestAdvanceRecordsCommissionBreakdown(t *testing.T) {
	ctx := context.Background()
	led := &stubLedger{}
	svc := newTestService(t, newMemoryRepo(), led)
	orderID := uuid.New()
	if _, err := svc.Initialize(ctx, nil, orderID, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	escrow, err := svc.Advance(ctx, AdvanceInput{OrderID: orderID, From: enums.EscrowStageDeposit, To: enums.EscrowStageFitting, Amount: decimal.NewFromInt(25), ActorID: uuid.New()})
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if escrow.DepositReleasedAt == nil {
		t.Fatalf("deposit release must be stamped")
	}
	if len(led.events) != 1 {
		t.Fatalf("expected one ledger event")
	}
	event := led.events[0]
	if !event.Breakdown.CommissionAmount.Equal(decimal.NewFromInt(5)) || !event.Breakdown.NetAmount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected breakdown %+v", event.Breakdown)
	}
	if !event.BalanceAfter.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("unexpected balance after %s", event.BalanceAfter)
	}
}

func TestValidateDetectsMismatch(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	svc := newTestService(t, repo, &stubLedger{})
	orderID := uuid.New()
	if _, err := svc.Initialize(ctx, nil, orderID, decimal.NewFromInt(250)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	result, err := svc.Validate(ctx, orderID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !result.IsValid {
		t.Fatalf("fresh escrow should be valid: %v", result.Errors)
	}

	row := repo.rows[orderID]
	row.Balance = decimal.NewFromInt(200)
	repo.rows[orderID] = row

	result, err = svc.Validate(ctx, orderID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.IsValid || len(result.Errors) == 0 {
		t.Fatalf("expected mismatch to be reported")
	}
	if !result.ExpectedBalance.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("expected balance 250, got %s", result.ExpectedBalance)
	}
	if stored := repo.rows[orderID].Balance; !stored.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("validate must not mutate, balance now %s", stored)
	}
}

func TestOverrideMovesBackwardAndRecomputesBalance(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	led := &stubLedger{}
	svc := newTestService(t, repo, led)
	orderID := uuid.New()
	actor := uuid.New()
	if _, err := svc.Initialize(ctx, nil, orderID, decimal.NewFromInt(250)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := svc.Advance(ctx, AdvanceInput{OrderID: orderID, From: enums.EscrowStageDeposit, To: enums.EscrowStageFitting, Amount: decimal.RequireFromString("62.50"), ActorID: actor}); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if _, err := svc.Advance(ctx, AdvanceInput{OrderID: orderID, From: enums.EscrowStageFitting, To: enums.EscrowStageFinal, Amount: decimal.NewFromInt(125), ActorID: actor}); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if _, err := svc.OverrideTx(ctx, nil, OverrideInput{OrderID: orderID, Stage: enums.EscrowStageFitting, ActorID: actor}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected missing reason to be rejected, got %v", err)
	}

	escrow, err := svc.OverrideTx(ctx, nil, OverrideInput{OrderID: orderID, Stage: enums.EscrowStageFitting, ActorID: actor, Reason: "fitting redone"})
	if err != nil {
		t.Fatalf("OverrideTx: %v", err)
	}
	if escrow.Stage != enums.EscrowStageFitting || !escrow.Balance.Equal(decimal.RequireFromString("187.50")) {
		t.Fatalf("unexpected override result stage=%s balance=%s", escrow.Stage, escrow.Balance)
	}
	if escrow.FittingReleasedAt != nil || escrow.DepositReleasedAt == nil {
		t.Fatalf("release stamps not recomputed: %+v", escrow)
	}

	result, err := svc.Validate(ctx, orderID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !result.IsValid {
		t.Fatalf("override must leave escrow consistent: %v", result.Errors)
	}
	last := led.events[len(led.events)-1]
	if last.Type != enums.LedgerEventTypeEscrowOverride || !last.Amount.Equal(decimal.NewFromInt(125)) {
		t.Fatalf("unexpected override ledger event %+v", last)
	}
}

func TestOverrideRejectsStageMovedSinceRead(t *testing.T) {
	ctx := context.Background()
	base := newMemoryRepo()
	led := &stubLedger{}
	orderID := uuid.New()
	actor := uuid.New()
	if _, err := newTestService(t, base, led).Initialize(ctx, nil, orderID, decimal.NewFromInt(250)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	svc := newTestService(t, &movingRepo{memoryRepo: base, to: enums.EscrowStageFitting}, led)
	_, err := svc.OverrideTx(ctx, nil, OverrideInput{OrderID: orderID, Stage: enums.EscrowStageFinal, ActorID: actor, Reason: "skip fitting"})
	if !errors.Is(err, ErrStageMismatch) {
		t.Fatalf("expected ErrStageMismatch, got %v", err)
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict code, got %v", err)
	}

	row := base.rows[orderID]
	if row.Stage != enums.EscrowStageFitting || !row.Balance.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("concurrent stage must survive, got stage=%s balance=%s", row.Stage, row.Balance)
	}
	for _, event := range led.events {
		if event.Type == enums.LedgerEventTypeEscrowOverride {
			t.Fatalf("override must not be recorded when the guard misses")
		}
	}
}

func TestGetStatusNotFound(t *testing.T) {
	svc := newTestService(t, newMemoryRepo(), &stubLedger{})
	if _, err := svc.GetStatus(context.Background(), uuid.New()); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
