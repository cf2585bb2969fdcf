package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stitchpay-backend/internal/autoapproval"
	"github.com/angelmondragon/stitchpay-backend/internal/commission"
	"github.com/angelmondragon/stitchpay-backend/internal/escrow"
	"github.com/angelmondragon/stitchpay-backend/internal/ledger"
	"github.com/angelmondragon/stitchpay-backend/internal/milestones"
	"github.com/angelmondragon/stitchpay-backend/internal/notifications"
	"github.com/angelmondragon/stitchpay-backend/internal/orders"
	"github.com/angelmondragon/stitchpay-backend/internal/payments"
	paymentwebhook "github.com/angelmondragon/stitchpay-backend/internal/webhooks/payment"
	"github.com/angelmondragon/stitchpay-backend/pkg/config"
	"github.com/angelmondragon/stitchpay-backend/pkg/db"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
	"github.com/angelmondragon/stitchpay-backend/pkg/metrics"
	"github.com/angelmondragon/stitchpay-backend/pkg/pubsub"
	"github.com/angelmondragon/stitchpay-backend/pkg/redis"
	"github.com/angelmondragon/stitchpay-backend/pkg/square"
)

// Params are the shared clients every process opens before building services.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

// Services is the settlement graph shared by the API and the cron worker.
type Services struct {
	Escrow      escrow.Service
	Milestones  milestones.Service
	Orders      orders.Service
	Payments    payments.Service
	Webhooks    *paymentwebhook.Service
	Receipts    paymentwebhook.ReceiptRepository
	Sweeper     *autoapproval.Sweeper
	Metrics     *metrics.SettlementMetrics
	GatewayName string
	pubsub      *pubsub.Client
	closers     []func() error
}

// NotificationPinger returns the Pub/Sub client for readiness checks, or nil
// when notifications only go to the log.
func (s *Services) NotificationPinger() interface{ Ping(ctx context.Context) error } {
	if s.pubsub == nil {
		return nil
	}
	return s.pubsub
}

// Close releases the clients opened while building the graph.
func (s *Services) Close() error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.closers[i]())
	}
	return err
}

func Build(ctx context.Context, params Params) (*Services, error) {
	cfg, logg := params.Config, params.Logger
	if cfg == nil || logg == nil || params.DB == nil {
		return nil, errors.New("config, logger and database are required")
	}
	registerer := params.Registerer
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}

	s := &Services{Metrics: metrics.NewSettlementMetrics(registerer)}
	fail := func(step string, err error) (*Services, error) {
		_ = s.Close()
		return nil, fmt.Errorf("%s: %w", step, err)
	}

	sender, err := s.notificationSender(ctx, cfg, logg)
	if err != nil {
		return fail("notification sender", err)
	}
	notifier, err := notifications.NewService(notifications.ServiceParams{
		Sender:  sender,
		Logger:  logg,
		Timeout: cfg.Notifications.SendTimeout,
	})
	if err != nil {
		return fail("notifications", err)
	}

	gateway, err := paymentGateway(ctx, cfg, logg)
	if err != nil {
		return fail("payment gateway", err)
	}
	s.GatewayName = gateway.Provider()
	if s.Payments, err = payments.NewService(payments.ServiceParams{
		Repo:    payments.NewRepository(params.DB.DB()),
		Gateway: gateway,
		Logger:  logg,
		Timeout: cfg.Square.RequestTimeout,
	}); err != nil {
		return fail("payments", err)
	}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(params.DB.DB()))
	if err != nil {
		return fail("ledger", err)
	}

	policy := commission.Policy{
		Rate:              cfg.Escrow.CommissionRate,
		ProcessingFeeRate: cfg.Escrow.ProcessingFeeRate,
	}
	if s.Escrow, err = escrow.NewService(escrow.ServiceParams{
		Repo:   escrow.NewRepository(params.DB.DB()),
		Ledger: ledgerSvc,
		DB:     params.DB,
		Logger: logg,
		Split: escrow.Split{
			DepositPercent: cfg.Escrow.DepositPercent,
			FittingPercent: cfg.Escrow.FittingPercent,
			FinalPercent:   cfg.Escrow.FinalPercent,
		},
		Commission: policy,
		Metrics:    s.Metrics,
	}); err != nil {
		return fail("escrow", err)
	}

	ordersRepo := orders.NewRepository(params.DB.DB())
	if s.Milestones, err = milestones.NewService(milestones.ServiceParams{
		Repo:               milestones.NewRepository(params.DB.DB()),
		Orders:             ordersRepo,
		Notifier:           notifier,
		Logger:             logg,
		AutoApprovalWindow: cfg.Escrow.AutoApprovalWindow,
	}); err != nil {
		return fail("milestones", err)
	}

	if s.Orders, err = orders.NewService(orders.ServiceParams{
		Repo:                  ordersRepo,
		DB:                    params.DB,
		Escrow:                s.Escrow,
		Payments:              s.Payments,
		Notifier:              notifier,
		Milestones:            s.Milestones,
		Commission:            policy,
		DisputeRejectionLimit: cfg.Escrow.DisputeRejectionLimit,
		Logger:                logg,
	}); err != nil {
		return fail("orders", err)
	}

	guard, err := s.webhookGuard(cfg, params.Redis)
	if err != nil {
		return fail("webhook guard", err)
	}
	s.Receipts = paymentwebhook.NewReceiptRepository(params.DB.DB())
	if s.Webhooks, err = paymentwebhook.NewService(paymentwebhook.ServiceParams{
		DB:           params.DB,
		Transactions: s.Payments,
		Receipts:     s.Receipts,
		Orders:       s.Orders,
		Guard:        guard,
		Logger:       logg,
		Metrics:      s.Metrics,
	}); err != nil {
		return fail("payment webhooks", err)
	}

	if s.Sweeper, err = autoapproval.NewSweeper(autoapproval.SweeperParams{
		Milestones: s.Milestones,
		Orders:     s.Orders,
		Logger:     logg,
		Metrics:    s.Metrics,
		BatchLimit: cfg.Cron.BatchLimit,
	}); err != nil {
		return fail("auto-approval sweeper", err)
	}

	return s, nil
}

// notificationSender publishes to Pub/Sub when a GCP project is configured
// and falls back to logging otherwise.
func (s *Services) notificationSender(ctx context.Context, cfg *config.Config, logg *logger.Logger) (notifications.Sender, error) {
	if cfg.GCP.ProjectID == "" {
		logg.Warn(ctx, "gcp project not configured, notifications are logged only")
		return notifications.NewLogSender(logg), nil
	}
	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return nil, err
	}
	s.pubsub = client
	s.closers = append(s.closers, client.Close)
	return notifications.NewPubSubSender(client, cfg.PubSub.NotificationTopic)
}

func paymentGateway(ctx context.Context, cfg *config.Config, logg *logger.Logger) (payments.Gateway, error) {
	if cfg.Square.AccessToken == "" {
		if cfg.App.IsProd() {
			return nil, errors.New("square access token required in production")
		}
		logg.Warn(ctx, "square not configured, using manual payment gateway")
		return payments.ManualGateway{}, nil
	}
	client, err := square.NewClient(ctx, cfg.Square, logg)
	if err != nil {
		return nil, err
	}
	return payments.NewSquareGateway(client, "USD")
}

func (s *Services) webhookGuard(cfg *config.Config, redisClient *redis.Client) (paymentwebhook.Guard, error) {
	if cfg.Webhook.UseRedisDedup && redisClient != nil {
		return paymentwebhook.NewRedisGuard(redisClient, payments.ProviderSquare, cfg.Webhook.DedupTTL)
	}
	guard := paymentwebhook.NewMemoryGuard(cfg.Webhook.DedupTTL)
	s.closers = append(s.closers, guard.Close)
	return guard, nil
}
