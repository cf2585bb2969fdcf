package orders

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/stitchpay-backend/internal/commission"
	"github.com/angelmondragon/stitchpay-backend/internal/escrow"
	"github.com/angelmondragon/stitchpay-backend/internal/ledger"
	"github.com/angelmondragon/stitchpay-backend/internal/notifications"
	"github.com/angelmondragon/stitchpay-backend/internal/payments"
	"github.com/angelmondragon/stitchpay-backend/pkg/db"
	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubPayments struct {
	mu     sync.Mutex
	inputs []payments.InitiateInput
	err    error
}

func (p *stubPayments) Initiate(_ context.Context, input payments.InitiateInput) (*models.PaymentTransaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs = append(p.inputs, input)
	if p.err != nil {
		return nil, p.err
	}
	url := "https://pay.example/" + strings.ToLower(input.Stage.String())
	return &models.PaymentTransaction{
		ID:            uuid.New(),
		TransactionID: fmt.Sprintf("tx_%s_%d", input.Stage, len(p.inputs)),
		OrderID:       input.OrderID,
		EscrowStage:   input.Stage,
		Amount:        input.Amount,
		Status:        enums.PaymentStatusPending,
		Reference:     payments.Reference(input.OrderID, input.Stage),
		PaymentURL:    &url,
	}, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifications.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notifications.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) types() []enums.NotificationType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]enums.NotificationType, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Type)
	}
	return out
}

type stubMilestones struct {
	milestone *models.OrderMilestone
}

func (s *stubMilestones) Get(_ context.Context, id uuid.UUID) (*models.OrderMilestone, error) {
	if s.milestone == nil || s.milestone.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.milestone
	return &copied, nil
}

type harness struct {
	conn       *gorm.DB
	svc        Service
	repo       Repository
	escrow     escrow.Service
	payments   *stubPayments
	notifier   *recordingNotifier
	milestones *stubMilestones
}

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{`
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  tailor_id TEXT NOT NULL,
  total_amount TEXT NOT NULL,
  status TEXT NOT NULL,
  customer_contact TEXT NOT NULL,
  payment_source_id TEXT,
  rejection_count INTEGER NOT NULL DEFAULT 0,
  last_rejected_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS order_escrows (
  order_id TEXT PRIMARY KEY,
  stage TEXT NOT NULL,
  total_amount TEXT NOT NULL,
  deposit_amount TEXT NOT NULL,
  fitting_amount TEXT NOT NULL,
  final_amount TEXT NOT NULL,
  balance TEXT NOT NULL,
  deposit_released_at DATETIME,
  fitting_released_at DATETIME,
  final_released_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS ledger_events (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  actor_id TEXT NOT NULL,
  type TEXT NOT NULL,
  from_stage TEXT NOT NULL,
  to_stage TEXT NOT NULL,
  amount TEXT NOT NULL,
  commission_amount TEXT NOT NULL,
  net_amount TEXT NOT NULL,
  balance_after TEXT NOT NULL,
  metadata TEXT,
  created_at DATETIME
);`}
	for _, stmt := range statements {
		require.NoError(t, conn.Exec(stmt).Error)
	}

	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := setupOrdersTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	policy := commission.Policy{Rate: decimal.RequireFromString("0.20")}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	escrowSvc, err := escrow.NewService(escrow.ServiceParams{
		Repo:   escrow.NewRepository(conn),
		Ledger: ledgerSvc,
		DB:     db.FromConn(conn),
		Logger: logg,
		Split: escrow.Split{
			DepositPercent: decimal.NewFromInt(25),
			FittingPercent: decimal.NewFromInt(50),
			FinalPercent:   decimal.NewFromInt(25),
		},
		Commission: policy,
		Now:        func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	h := &harness{
		conn:       conn,
		repo:       NewRepository(conn),
		escrow:     escrowSvc,
		payments:   &stubPayments{},
		notifier:   &recordingNotifier{},
		milestones: &stubMilestones{},
	}
	h.svc, err = NewService(ServiceParams{
		Repo:                  h.repo,
		DB:                    db.FromConn(conn),
		Escrow:                escrowSvc,
		Payments:              h.payments,
		Notifier:              h.notifier,
		Milestones:            h.milestones,
		Commission:            policy,
		DisputeRejectionLimit: 2,
		Logger:                logg,
		Now:                   func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return h
}

func (h *harness) createOrder(t *testing.T, total string) *CreateResult {
	t.Helper()
	customer := uuid.New()
	source := "ccof_test"
	result, err := h.svc.Create(context.Background(), CreateInput{
		CustomerID:      customer,
		TailorID:        uuid.New(),
		TotalAmount:     decimal.RequireFromString(total),
		CustomerContact: "customer@example.com",
		PaymentSourceID: &source,
		Actor:           customerActor(customer),
	})
	require.NoError(t, err)
	return result
}

func (h *harness) confirmDeposit(t *testing.T, orderID uuid.UUID) *Outcome {
	t.Helper()
	outcome, err := h.svc.OnPaymentConfirmed(context.Background(), PaymentConfirmation{
		TransactionID: "tx_deposit",
		OrderID:       orderID,
		Stage:         enums.EscrowStageDeposit,
		Amount:        decimal.RequireFromString("62.50"),
	})
	require.NoError(t, err)
	return outcome
}

func (h *harness) order(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := h.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return order
}
