package bootstrap

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/stitchpay-backend/internal/payments"
	paymentwebhook "github.com/angelmondragon/stitchpay-backend/internal/webhooks/payment"
	"github.com/angelmondragon/stitchpay-backend/pkg/config"
	"github.com/angelmondragon/stitchpay-backend/pkg/db"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
)

func testConfig(env string) *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: env},
		Escrow: config.EscrowConfig{
			DepositPercent:        decimal.NewFromInt(25),
			FittingPercent:        decimal.NewFromInt(50),
			FinalPercent:          decimal.NewFromInt(25),
			CommissionRate:        decimal.RequireFromString("0.20"),
			AutoApprovalWindow:    48 * time.Hour,
			DisputeRejectionLimit: 2,
		},
		Webhook:       config.WebhookConfig{DedupTTL: time.Minute, UseRedisDedup: true},
		Cron:          config.CronConfig{BatchLimit: 50},
		Square:        config.SquareConfig{RequestTimeout: time.Second},
		Notifications: config.NotificationsConfig{SendTimeout: time.Second},
	}
}

func testDB(t *testing.T) *db.Client {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	return db.FromConn(conn)
}

func TestBuildWiresDevelopmentFallbacks(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	services, err := Build(context.Background(), Params{
		Config:     testConfig("dev"),
		Logger:     logg,
		DB:         testDB(t),
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, services.Close()) })

	require.Equal(t, payments.ProviderManual, services.GatewayName)
	require.NotNil(t, services.Orders)
	require.NotNil(t, services.Milestones)
	require.NotNil(t, services.Escrow)
	require.NotNil(t, services.Webhooks)
	require.NotNil(t, services.Sweeper)
	require.NotNil(t, services.Receipts)
}

func TestWebhookGuardFallsBackToMemoryWithoutRedis(t *testing.T) {
	s := &Services{}
	guard, err := s.webhookGuard(testConfig("dev"), nil)
	require.NoError(t, err)
	require.IsType(t, &paymentwebhook.MemoryGuard{}, guard)
	require.Len(t, s.closers, 1)
	require.NoError(t, s.closers[0]())
}

func TestBuildRequiresSquareInProduction(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	_, err := Build(context.Background(), Params{
		Config: testConfig("prod"),
		Logger: logg,
		DB:     testDB(t),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "square access token")
}

func TestBuildRequiresClients(t *testing.T) {
	_, err := Build(context.Background(), Params{Config: testConfig("dev")})
	require.Error(t, err)
}
