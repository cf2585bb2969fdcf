package payments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stitchpay-backend/pkg/errors"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubGateway struct {
	requests []ChargeRequest
	result   *ChargeResult
	err      error
}

func (g *stubGateway) Provider() string { return "stub" }

func (g *stubGateway) Charge(_ context.Context, req ChargeRequest) (*ChargeResult, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

func setupPaymentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	ddl := `
CREATE TABLE IF NOT EXISTS payment_transactions (
  id TEXT PRIMARY KEY,
  transaction_id TEXT NOT NULL UNIQUE,
  provider TEXT NOT NULL,
  order_id TEXT NOT NULL,
  escrow_stage TEXT NOT NULL,
  amount TEXT NOT NULL,
  status TEXT NOT NULL,
  reference TEXT NOT NULL,
  payment_url TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, conn.Exec(ddl).Error)

	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

func newTestService(t *testing.T, conn *gorm.DB, gateway Gateway) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(conn),
		Gateway: gateway,
		Logger:  logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc
}

func TestInitiateRecordsPendingTransaction(t *testing.T) {
	ctx := context.Background()
	conn := setupPaymentsTestDB(t)
	gateway := &stubGateway{result: &ChargeResult{
		TransactionID: "tx_final_1",
		Status:        enums.PaymentStatusPending,
		PaymentURL:    "https://pay.example/tx_final_1",
	}}
	svc := newTestService(t, conn, gateway)

	orderID := uuid.New()
	source := "ccof_123"
	txn, err := svc.Initiate(ctx, InitiateInput{
		OrderID:  orderID,
		Stage:    enums.EscrowStageFinal,
		Amount:   decimal.RequireFromString("62.50"),
		SourceID: &source,
	})
	require.NoError(t, err)
	assert.Equal(t, "tx_final_1", txn.TransactionID)
	assert.Equal(t, enums.PaymentStatusPending, txn.Status)
	require.NotNil(t, txn.PaymentURL)

	require.Len(t, gateway.requests, 1)
	req := gateway.requests[0]
	assert.Equal(t, Reference(orderID, enums.EscrowStageFinal), req.Reference)
	assert.Equal(t, idempotencyKey(orderID, enums.EscrowStageFinal), req.IdempotencyKey)
	assert.Equal(t, "ccof_123", req.SourceID)

	stored, err := svc.FindTx(ctx, nil, "tx_final_1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, orderID, stored.OrderID)
	assert.True(t, stored.Amount.Equal(decimal.RequireFromString("62.50")))
}

func TestInitiateRequiresPaymentSource(t *testing.T) {
	conn := setupPaymentsTestDB(t)
	gateway := &stubGateway{}
	svc := newTestService(t, conn, gateway)

	_, err := svc.Initiate(context.Background(), InitiateInput{
		OrderID: uuid.New(),
		Stage:   enums.EscrowStageFinal,
		Amount:  decimal.NewFromInt(10),
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict), "got %v", err)
	assert.Empty(t, gateway.requests)
}

func TestInitiateValidation(t *testing.T) {
	conn := setupPaymentsTestDB(t)
	svc := newTestService(t, conn, &stubGateway{})
	source := "ccof"

	cases := []InitiateInput{
		{Stage: enums.EscrowStageFinal, Amount: decimal.NewFromInt(1), SourceID: &source},
		{OrderID: uuid.New(), Stage: enums.EscrowStageReleased, Amount: decimal.NewFromInt(1), SourceID: &source},
		{OrderID: uuid.New(), Stage: enums.EscrowStageFinal, Amount: decimal.Zero, SourceID: &source},
	}
	for idx, input := range cases {
		_, err := svc.Initiate(context.Background(), input)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "case %d: got %v", idx, err)
	}
}

func TestInitiateWrapsProviderFailure(t *testing.T) {
	conn := setupPaymentsTestDB(t)
	svc := newTestService(t, conn, &stubGateway{err: errors.New("connection reset")})
	source := "ccof"

	_, err := svc.Initiate(context.Background(), InitiateInput{
		OrderID:  uuid.New(),
		Stage:    enums.EscrowStageFinal,
		Amount:   decimal.NewFromInt(10),
		SourceID: &source,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency), "got %v", err)
}

func TestRecordTxUpsertsByTransactionID(t *testing.T) {
	ctx := context.Background()
	conn := setupPaymentsTestDB(t)
	svc := newTestService(t, conn, &stubGateway{})

	orderID := uuid.New()
	input := RecordInput{
		TransactionID: "tx_dep_1",
		Provider:      ProviderSquare,
		OrderID:       orderID,
		Stage:         enums.EscrowStageDeposit,
		Amount:        decimal.RequireFromString("62.50"),
		Status:        enums.PaymentStatusPending,
	}
	_, err := svc.RecordTx(ctx, nil, input)
	require.NoError(t, err)

	input.Status = enums.PaymentStatusSuccess
	input.Amount = decimal.NewFromInt(999)
	_, err = svc.RecordTx(ctx, nil, input)
	require.NoError(t, err)

	rows, err := svc.ListForOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.PaymentStatusSuccess, rows[0].Status)
	assert.True(t, rows[0].Amount.Equal(decimal.RequireFromString("62.50")), "amount is fixed by the first write")
	assert.Equal(t, Reference(orderID, enums.EscrowStageDeposit), rows[0].Reference)

	missing, err := svc.FindTx(ctx, nil, "tx_unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecordTxKeepsFinalStatus(t *testing.T) {
	ctx := context.Background()
	conn := setupPaymentsTestDB(t)
	svc := newTestService(t, conn, &stubGateway{})

	input := RecordInput{
		TransactionID: "tx_fit_1",
		Provider:      ProviderSquare,
		OrderID:       uuid.New(),
		Stage:         enums.EscrowStageFitting,
		Amount:        decimal.RequireFromString("125.00"),
		Status:        enums.PaymentStatusSuccess,
	}
	_, err := svc.RecordTx(ctx, nil, input)
	require.NoError(t, err)

	input.Status = enums.PaymentStatusPending
	stored, err := svc.RecordTx(ctx, nil, input)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusSuccess, stored.Status)

	row, err := svc.FindTx(ctx, nil, "tx_fit_1")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusSuccess, row.Status)
}

func TestUpsertSkipsRowsWithFinalStatus(t *testing.T) {
	ctx := context.Background()
	conn := setupPaymentsTestDB(t)
	repo := NewRepository(conn)

	txn := &models.PaymentTransaction{
		TransactionID: "tx_race",
		Provider:      ProviderSquare,
		OrderID:       uuid.New(),
		EscrowStage:   enums.EscrowStageDeposit,
		Amount:        decimal.RequireFromString("62.50"),
		Status:        enums.PaymentStatusCancelled,
		Reference:     "ref",
	}
	require.NoError(t, repo.Upsert(ctx, txn))

	late := *txn
	late.ID = uuid.Nil
	late.Status = enums.PaymentStatusPending
	require.NoError(t, repo.Upsert(ctx, &late))

	row, err := repo.FindByTransactionID(ctx, "tx_race")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCancelled, row.Status)
}
