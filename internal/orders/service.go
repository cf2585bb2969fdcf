package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/stitchpay-backend/internal/commission"
	"github.com/angelmondragon/stitchpay-backend/internal/escrow"
	"github.com/angelmondragon/stitchpay-backend/internal/notifications"
	"github.com/angelmondragon/stitchpay-backend/internal/payments"
	"github.com/angelmondragon/stitchpay-backend/pkg/auth"
	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stitchpay-backend/pkg/errors"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrInvalidTransition = errors.New("order: invalid status transition")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type paymentInitiator interface {
	Initiate(ctx context.Context, input payments.InitiateInput) (*models.PaymentTransaction, error)
}

type milestoneReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.OrderMilestone, error)
}

// Service owns the coarse order status and drives escrow movements from
// milestone and payment events.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*CreateResult, error)
	Get(ctx context.Context, id uuid.UUID, viewer auth.Actor) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)

	OnMilestoneSubmitted(ctx context.Context, event MilestoneEvent) (*Outcome, error)
	OnMilestoneResolved(ctx context.Context, event MilestoneEvent) (*Outcome, error)
	OnPaymentConfirmed(ctx context.Context, confirmation PaymentConfirmation) (*Outcome, error)
	Redrive(ctx context.Context, milestoneID uuid.UUID, actor auth.Actor) (*Outcome, error)

	OpenDispute(ctx context.Context, input DisputeInput) (*models.Order, error)
	ResolveDispute(ctx context.Context, input ResolveDisputeInput) (*Outcome, error)
}

type ServiceParams struct {
	Repo                  Repository
	DB                    txRunner
	Escrow                escrow.Service
	Payments              paymentInitiator
	Notifier              notifications.Service
	Milestones            milestoneReader
	Commission            commission.Policy
	DisputeRejectionLimit int
	Logger                *logger.Logger
	Now                   func() time.Time
}

type service struct {
	repo         Repository
	tx           txRunner
	escrow       escrow.Service
	payments     paymentInitiator
	notifier     notifications.Service
	milestones   milestoneReader
	commission   commission.Policy
	disputeLimit int
	logg         *logger.Logger
	now          func() time.Time
}

// NewService builds the order orchestrator with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Escrow == nil {
		return nil, fmt.Errorf("escrow service required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment initiator required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	limit := params.DisputeRejectionLimit
	if limit <= 0 {
		limit = 2
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:         params.Repo,
		tx:           params.DB,
		escrow:       params.Escrow,
		payments:     params.Payments,
		notifier:     params.Notifier,
		milestones:   params.Milestones,
		commission:   params.Commission,
		disputeLimit: limit,
		logg:         params.Logger,
		now:          now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*CreateResult, error) {
	if input.CustomerID == uuid.Nil || input.TailorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer and tailor required")
	}
	if input.CustomerID == input.TailorID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer and tailor must differ")
	}
	if !input.Actor.IsAdmin() && (input.Actor.Role != enums.ActorRoleCustomer || input.Actor.ID != input.CustomerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "orders can only be placed by the customer")
	}
	contact := strings.TrimSpace(input.CustomerContact)
	if contact == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer contact required")
	}

	order := &models.Order{
		ID:              uuid.New(),
		CustomerID:      input.CustomerID,
		TailorID:        input.TailorID,
		TotalAmount:     input.TotalAmount,
		Status:          enums.OrderStatusPendingPayment,
		CustomerContact: contact,
		PaymentSourceID: input.PaymentSourceID,
	}
	var escrowRow *models.OrderEscrow
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		created, err := s.escrow.Initialize(ctx, tx, order.ID, input.TotalAmount)
		if err != nil {
			return err
		}
		escrowRow = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(s.logg.WithField(ctx, "total", order.TotalAmount.StringFixed(2)), "order created")

	result := &CreateResult{Order: order, Escrow: escrowRow}
	if order.PaymentSourceID != nil {
		deposit, err := s.payments.Initiate(ctx, payments.InitiateInput{
			OrderID:  order.ID,
			Stage:    enums.EscrowStageDeposit,
			Amount:   escrowRow.DepositAmount,
			SourceID: order.PaymentSourceID,
		})
		if err != nil {
			s.logg.Error(ctx, "deposit payment initiation failed", err)
		} else {
			result.Deposit = deposit
		}
	}
	return result, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID, viewer auth.Actor) (*models.Order, error) {
	order, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.CanView(order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "actor may not view this order")
	}
	return order, nil
}

func (s *service) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.load(ctx, s.repo, id)
}

func (s *service) OpenDispute(ctx context.Context, input DisputeInput) (*models.Order, error) {
	if strings.TrimSpace(input.Reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute reason required")
	}
	order, err := s.load(ctx, s.repo, input.OrderID)
	if err != nil {
		return nil, err
	}
	switch {
	case input.Actor.IsAdmin():
	case input.Actor.IsCustomerOf(order):
		if order.RejectionCount < s.disputeLimit {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not eligible for dispute").
				WithDetails(map[string]any{"rejections": order.RejectionCount, "required": s.disputeLimit})
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the customer or an admin may open a dispute")
	}
	if order.Status == enums.OrderStatusDisputed {
		return order, nil
	}
	if _, err := s.moveStatus(ctx, s.repo, order, enums.OrderStatusDisputed); err != nil {
		return nil, err
	}
	s.logg.Warn(s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"actor_id": input.Actor.ID,
		"reason":   input.Reason,
	}), "order disputed")
	return order, nil
}

func (s *service) ResolveDispute(ctx context.Context, input ResolveDisputeInput) (*Outcome, error) {
	if !input.Actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only an admin may resolve disputes")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "resolution reason required")
	}
	if !input.Status.IsDisputeResolution() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("dispute cannot resolve to %q", input.Status))
	}
	if input.EscrowStage != "" && !input.EscrowStage.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid escrow stage %q", input.EscrowStage))
	}

	var outcome *Outcome
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lock(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusDisputed {
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrInvalidTransition, "order is not disputed")
		}
		outcome = &Outcome{OrderID: order.ID}
		if input.EscrowStage != "" {
			row, err := s.escrow.OverrideTx(ctx, tx, escrow.OverrideInput{
				OrderID: order.ID,
				Stage:   input.EscrowStage,
				ActorID: input.Actor.ID,
				Reason:  input.Reason,
			})
			if err != nil {
				return err
			}
			outcome.EscrowStage = row.Stage
		}
		applied, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusDisputed, input.Status)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !applied {
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrInvalidTransition, "order is no longer disputed")
		}
		order.Status = input.Status
		outcome.OrderStatus = order.Status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.Order, error) {
	return s.fetch(ctx, id, repo.FindByID)
}

// lock loads the order under a row lock; only call it inside a transaction.
func (s *service) lock(ctx context.Context, repo Repository, id uuid.UUID) (*models.Order, error) {
	return s.fetch(ctx, id, repo.FindByIDForUpdate)
}

func (s *service) fetch(ctx context.Context, id uuid.UUID, find func(context.Context, uuid.UUID) (*models.Order, error)) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := find(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func frozen(status enums.OrderStatus) error {
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrInvalidTransition,
		fmt.Sprintf("order is %s; escrow is frozen", status))
}

// moveStatus applies one edge of the transition table. Targets the order has
// already reached are a no-op so replayed events are harmless.
func (s *service) moveStatus(ctx context.Context, repo Repository, order *models.Order, to enums.OrderStatus) (bool, error) {
	if order.Status == to || order.Status.AtOrBeyond(to) {
		return false, nil
	}
	if !order.Status.CanTransitionTo(to) {
		return false, pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrInvalidTransition,
			fmt.Sprintf("order cannot move from %s to %s", order.Status, to))
	}
	applied, err := repo.TransitionStatus(ctx, order.ID, order.Status, to)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !applied {
		current, err := s.load(ctx, repo, order.ID)
		if err != nil {
			return false, err
		}
		order.Status = current.Status
		if current.Status == to || current.Status.AtOrBeyond(to) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeConflict, ErrInvalidTransition, "order status changed concurrently")
	}
	from := order.Status
	order.Status = to
	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"from_status": from,
		"to_status":   to,
	}), "order status changed")
	return true, nil
}
