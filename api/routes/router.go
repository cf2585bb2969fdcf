package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/stitchpay-backend/api/controllers"
	milestonecontrollers "github.com/angelmondragon/stitchpay-backend/api/controllers/milestones"
	ordercontrollers "github.com/angelmondragon/stitchpay-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/stitchpay-backend/api/controllers/webhooks"
	"github.com/angelmondragon/stitchpay-backend/api/middleware"
	"github.com/angelmondragon/stitchpay-backend/internal/autoapproval"
	"github.com/angelmondragon/stitchpay-backend/internal/escrow"
	"github.com/angelmondragon/stitchpay-backend/internal/milestones"
	"github.com/angelmondragon/stitchpay-backend/internal/orders"
	paymentwebhook "github.com/angelmondragon/stitchpay-backend/internal/webhooks/payment"
	"github.com/angelmondragon/stitchpay-backend/pkg/config"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
	"github.com/angelmondragon/stitchpay-backend/pkg/redis"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the domain services the HTTP surface dispatches to.
type Services struct {
	Orders          orders.Service
	Milestones      milestones.Service
	Escrow          escrow.Service
	WebhookVerifier *paymentwebhook.Verifier
	Webhooks        *paymentwebhook.Service
	Sweeper         *autoapproval.Sweeper
	// PubSub is probed by readiness when notifications are published.
	PubSub          pinger
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP pinger,
	redisClient *redis.Client,
	metricsHandler http.Handler,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var (
		redisP    pinger
		idemStore middleware.IdempotencyStore
	)
	if redisClient != nil {
		redisP = redisClient
		idemStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.Dependency{Name: "database", Check: dbP},
			controllers.Dependency{Name: "redis", Check: redisP},
			controllers.Dependency{Name: "pubsub", Check: svc.PubSub},
		))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", webhookcontrollers.PaymentWebhook(webhookVerifier(svc), webhookProcessor(svc), logg))
	})

	r.Route("/api/v1/cron", func(r chi.Router) {
		r.Post("/auto-approve", controllers.CronAutoApprove(cfg.Cron.Secret, sweepRunner(svc), logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(svc.Orders, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/escrow", ordercontrollers.EscrowStatus(svc.Orders, svc.Escrow, logg))
				r.Post("/dispute", ordercontrollers.OpenDispute(svc.Orders, logg))
				r.Get("/milestones/pending", milestonecontrollers.Pending(svc.Milestones, logg))
				r.Post("/milestones", milestonecontrollers.Submit(svc.Milestones, svc.Orders, logg))
			})
		})
		r.Post("/milestones/{milestoneId}/resolve", milestonecontrollers.Resolve(svc.Milestones, svc.Orders, logg))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
		r.Use(middleware.Idempotency(idemStore, logg))
		r.Get("/ping", controllers.AdminPing())
		r.Route("/v1", func(r chi.Router) {
			r.Get("/orders/{orderId}/escrow/validate", ordercontrollers.AdminValidateEscrow(svc.Escrow, logg))
			r.Post("/orders/{orderId}/escrow/override", ordercontrollers.AdminOverrideEscrow(svc.Orders, logg))
			r.Post("/milestones/{milestoneId}/redrive", milestonecontrollers.AdminRedrive(svc.Orders, logg))
		})
	})

	return r
}

type verifier interface {
	CheckSource(r *http.Request) error
	CheckSignature(r *http.Request, body []byte) error
}

type processor interface {
	Process(ctx context.Context, event paymentwebhook.Event) (*paymentwebhook.Result, error)
}

type sweeper interface {
	Run(ctx context.Context) (*autoapproval.Summary, error)
}

// The helpers below keep a missing dependency a nil interface so handlers
// can report it instead of dereferencing a nil pointer.

func webhookVerifier(svc Services) verifier {
	if svc.WebhookVerifier == nil {
		return nil
	}
	return svc.WebhookVerifier
}

func webhookProcessor(svc Services) processor {
	if svc.Webhooks == nil {
		return nil
	}
	return svc.Webhooks
}

func sweepRunner(svc Services) sweeper {
	if svc.Sweeper == nil {
		return nil
	}
	return svc.Sweeper
}
