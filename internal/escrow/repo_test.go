package escrow

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/angelmondragon/stitchpay-backend/internal/commission"
	"github.com/angelmondragon/stitchpay-backend/internal/ledger"
	"github.com/angelmondragon/stitchpay-backend/pkg/db"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupEscrowTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	escrows := `
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
);`
	events := `
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
);`
	require.NoError(t, conn.Exec(escrows).Error)
	require.NoError(t, conn.Exec(events).Error)

	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

func newSQLiteService(t *testing.T, conn *gorm.DB) (Service, Repository) {
	t.Helper()
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	repo := NewRepository(conn)
	svc, err := NewService(ServiceParams{
		Repo:       repo,
		Ledger:     ledgerSvc,
		DB:         db.FromConn(conn),
		Logger:     testLogger(),
		Split:      defaultSplit(),
		Commission: commission.Policy{Rate: decimal.RequireFromString("0.20")},
	})
	require.NoError(t, err)
	return svc, repo
}

func TestRepository_CompareAndAdvanceIsConditional(t *testing.T) {
	ctx := context.Background()
	conn := setupEscrowTestDB(t)
	svc, repo := newSQLiteService(t, conn)

	orderID := uuid.New()
	_, err := svc.Initialize(ctx, nil, orderID, decimal.NewFromInt(250))
	require.NoError(t, err)

	change := StageChange{
		OrderID:    orderID,
		From:       enums.EscrowStageDeposit,
		To:         enums.EscrowStageFitting,
		Balance:    decimal.RequireFromString("187.50"),
		ReleasedAt: fixedNow(),
	}
	applied, err := repo.CompareAndAdvance(ctx, change)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.CompareAndAdvance(ctx, change)
	require.NoError(t, err)
	assert.False(t, applied, "second advance from a stale stage must not apply")

	stored, err := repo.FindByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStageFitting, stored.Stage)
	assert.True(t, stored.Balance.Equal(decimal.RequireFromString("187.50")))
	assert.NotNil(t, stored.DepositReleasedAt)
	assert.Nil(t, stored.FittingReleasedAt)
}

func TestRepository_OverrideIsGuardedOnObservedStage(t *testing.T) {
	ctx := context.Background()
	conn := setupEscrowTestDB(t)
	svc, repo := newSQLiteService(t, conn)

	orderID := uuid.New()
	_, err := svc.Initialize(ctx, nil, orderID, decimal.NewFromInt(250))
	require.NoError(t, err)

	stale := OverrideUpdate{
		From:    enums.EscrowStageFitting,
		Stage:   enums.EscrowStageDeposit,
		Balance: decimal.NewFromInt(250),
	}
	applied, err := repo.Override(ctx, orderID, stale)
	require.NoError(t, err)
	assert.False(t, applied, "override observed a stage the row no longer holds")

	released := fixedNow()
	current := OverrideUpdate{
		From:              enums.EscrowStageDeposit,
		Stage:             enums.EscrowStageFitting,
		Balance:           decimal.RequireFromString("187.50"),
		DepositReleasedAt: &released,
	}
	applied, err = repo.Override(ctx, orderID, current)
	require.NoError(t, err)
	assert.True(t, applied)

	stored, err := repo.FindByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStageFitting, stored.Stage)
	assert.True(t, stored.Balance.Equal(decimal.RequireFromString("187.50")))
	assert.NotNil(t, stored.DepositReleasedAt)
}

func TestService_FullLifecycleReleasesEverything(t *testing.T) {
	ctx := context.Background()
	conn := setupEscrowTestDB(t)
	svc, _ := newSQLiteService(t, conn)

	orderID := uuid.New()
	actor := uuid.New()
	created, err := svc.Initialize(ctx, nil, orderID, decimal.RequireFromString("250.00"))
	require.NoError(t, err)
	assert.True(t, created.DepositAmount.Equal(decimal.RequireFromString("62.50")))
	assert.True(t, created.FittingAmount.Equal(decimal.NewFromInt(125)))
	assert.True(t, created.FinalAmount.Equal(decimal.RequireFromString("62.50")))

	steps := []struct {
		from, to enums.EscrowStage
		amount   string
		balance  string
	}{
		{enums.EscrowStageDeposit, enums.EscrowStageFitting, "62.50", "187.50"},
		{enums.EscrowStageFitting, enums.EscrowStageFinal, "125.00", "62.50"},
		{enums.EscrowStageFinal, enums.EscrowStageReleased, "62.50", "0"},
	}
	for _, step := range steps {
		escrow, err := svc.Advance(ctx, AdvanceInput{
			OrderID: orderID,
			From:    step.from,
			To:      step.to,
			Amount:  decimal.RequireFromString(step.amount),
			ActorID: actor,
		})
		require.NoError(t, err, "advance %s -> %s", step.from, step.to)
		assert.True(t, escrow.Balance.Equal(decimal.RequireFromString(step.balance)), "balance after %s", step.to)

		result, err := svc.Validate(ctx, orderID)
		require.NoError(t, err)
		assert.True(t, result.IsValid, "escrow invalid after %s: %v", step.to, result.Errors)
	}

	status, err := svc.GetStatus(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStageReleased, status.CurrentStage)
	assert.True(t, status.Balance.IsZero())
	assert.True(t, status.NextStageAmount.IsZero())
	require.Len(t, status.StageHistory, 3)
	assert.Equal(t, enums.EscrowStageDeposit, status.StageHistory[0].FromStage)
	assert.Equal(t, enums.EscrowStageReleased, status.StageHistory[2].ToStage)

	_, err = svc.Advance(ctx, AdvanceInput{
		OrderID: orderID,
		From:    enums.EscrowStageFinal,
		To:      enums.EscrowStageReleased,
		Amount:  decimal.RequireFromString("62.50"),
		ActorID: actor,
	})
	assert.ErrorIs(t, err, ErrStageMismatch)

	var count int64
	require.NoError(t, conn.Table("ledger_events").Where("order_id = ?", orderID).Count(&count).Error)
	assert.EqualValues(t, 3, count)
}
