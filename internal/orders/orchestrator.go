package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/stitchpay-backend/internal/escrow"
	"github.com/angelmondragon/stitchpay-backend/internal/notifications"
	"github.com/angelmondragon/stitchpay-backend/internal/payments"
	"github.com/angelmondragon/stitchpay-backend/pkg/auth"
	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stitchpay-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func (s *service) OnMilestoneSubmitted(ctx context.Context, event MilestoneEvent) (*Outcome, error) {
	if !event.Milestone.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid milestone %q", event.Milestone))
	}
	order, err := s.load(ctx, s.repo, event.OrderID)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{OrderID: order.ID, OrderStatus: order.Status}
	if !order.Status.AcceptsMilestones() {
		return outcome, nil
	}

	target := enums.OrderStatusInProgress
	if event.Milestone.IsFitting() {
		target = enums.OrderStatusFittingScheduled
	}
	if _, err := s.moveStatus(ctx, s.repo, order, target); err != nil {
		return nil, err
	}
	outcome.OrderStatus = order.Status
	return outcome, nil
}

func (s *service) OnMilestoneResolved(ctx context.Context, event MilestoneEvent) (*Outcome, error) {
	if !event.Milestone.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid milestone %q", event.Milestone))
	}
	if !event.Status.IsResolution() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("milestone status %q is not a resolution", event.Status))
	}
	if event.ActorID == uuid.Nil {
		event.ActorID = auth.SystemActorID
	}

	ctx = s.logg.WithOrderID(ctx, event.OrderID.String())
	if event.MilestoneID != uuid.Nil {
		ctx = s.logg.WithMilestoneID(ctx, event.MilestoneID.String())
	}
	order, err := s.load(ctx, s.repo, event.OrderID)
	if err != nil {
		return nil, err
	}

	if event.Status == enums.ApprovalStatusRejected {
		if err := s.repo.RecordRejection(ctx, order.ID, s.now()); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record rejection")
		}
		s.logg.Info(s.logg.WithField(ctx, "rejections", order.RejectionCount+1), "milestone rejection recorded")
		return &Outcome{OrderID: order.ID, OrderStatus: order.Status}, nil
	}

	if order.Status.IsFrozen() {
		return nil, frozen(order.Status)
	}

	metadata := map[string]any{
		"milestone":       event.Milestone,
		"approval_status": event.Status,
	}
	if event.MilestoneID != uuid.Nil {
		metadata["milestone_id"] = event.MilestoneID
	}

	switch {
	case event.Milestone.IsFitting():
		return s.approveFitting(ctx, order.ID, event.ActorID, metadata)
	case event.Milestone.IsFinal():
		return s.approveFinal(ctx, order.ID, event.ActorID, metadata)
	default:
		s.logg.Info(s.logg.WithField(ctx, "milestone", event.Milestone), "milestone approved without escrow movement")
		return &Outcome{OrderID: order.ID, OrderStatus: order.Status}, nil
	}
}

func (s *service) approveFitting(ctx context.Context, orderID, actorID uuid.UUID, metadata map[string]any) (*Outcome, error) {
	var (
		order     *models.Order
		escrowRow *models.OrderEscrow
		outcome   *Outcome
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.lock(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if current.Status.IsFrozen() {
			return frozen(current.Status)
		}
		row, released, advanced, err := s.release(ctx, tx, orderID, enums.EscrowStageFitting, actorID, metadata)
		if err != nil {
			return err
		}
		if _, err := s.moveStatus(ctx, repo, current, enums.OrderStatusFittingApproved); err != nil {
			return err
		}
		order, escrowRow = current, row
		outcome = &Outcome{
			OrderID:     orderID,
			OrderStatus: current.Status,
			EscrowStage: row.Stage,
			Released:    released,
			Advanced:    advanced,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !outcome.Advanced {
		s.logg.Info(ctx, "fitting release already applied")
		return outcome, nil
	}

	amount := escrowRow.FinalAmount
	txn, err := s.payments.Initiate(ctx, payments.InitiateInput{
		OrderID:  orderID,
		Stage:    enums.EscrowStageFinal,
		Amount:   amount,
		SourceID: order.PaymentSourceID,
	})
	if err != nil {
		s.logg.Error(ctx, "final payment initiation failed", err)
		return outcome, nil
	}
	outcome.Payment = txn

	paymentURL := ""
	if txn.PaymentURL != nil {
		paymentURL = *txn.PaymentURL
	}
	if err := s.notifier.Notify(ctx, notifications.PaymentReminder(order, enums.EscrowStageFinal, amount, paymentURL)); err != nil {
		s.logg.Error(ctx, "payment reminder notification failed", err)
	}
	return outcome, nil
}

func (s *service) approveFinal(ctx context.Context, orderID, actorID uuid.UUID, metadata map[string]any) (*Outcome, error) {
	var (
		order   *models.Order
		outcome *Outcome
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.lock(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if current.Status.IsFrozen() {
			return frozen(current.Status)
		}
		row, released, advanced, err := s.release(ctx, tx, orderID, enums.EscrowStageFinal, actorID, metadata)
		if err != nil {
			return err
		}
		if _, err := s.moveStatus(ctx, repo, current, enums.OrderStatusCompleted); err != nil {
			return err
		}
		order = current
		outcome = &Outcome{
			OrderID:     orderID,
			OrderStatus: current.Status,
			EscrowStage: row.Stage,
			Released:    released,
			Advanced:    advanced,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !outcome.Advanced {
		s.logg.Info(ctx, "final release already applied")
		return outcome, nil
	}

	breakdown, err := s.commission.Breakdown(outcome.Released)
	if err != nil {
		s.logg.Error(ctx, "completion breakdown failed", err)
		return outcome, nil
	}
	if err := s.notifier.Notify(ctx, notifications.OrderCompleted(order, outcome.Released, breakdown.NetAmount)); err != nil {
		s.logg.Error(ctx, "order completion notification failed", err)
	}
	return outcome, nil
}

func (s *service) OnPaymentConfirmed(ctx context.Context, confirmation PaymentConfirmation) (*Outcome, error) {
	if confirmation.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !confirmation.Stage.Holding() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment stage %q", confirmation.Stage))
	}
	ctx = s.logg.WithFields(s.logg.WithOrderID(ctx, confirmation.OrderID.String()), map[string]any{
		"transaction_id": confirmation.TransactionID,
		"stage":          confirmation.Stage,
	})

	var target enums.OrderStatus
	switch confirmation.Stage {
	case enums.EscrowStageDeposit:
		target = enums.OrderStatusDepositPaid
	case enums.EscrowStageFinal:
		target = enums.OrderStatusFinalPaid
	default:
		order, err := s.load(ctx, s.repo, confirmation.OrderID)
		if err != nil {
			return nil, err
		}
		s.logg.Info(ctx, "payment confirmation has no status effect")
		return &Outcome{OrderID: order.ID, OrderStatus: order.Status}, nil
	}

	var (
		order        *models.Order
		outcome      *Outcome
		transitioned bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.lock(ctx, repo, confirmation.OrderID)
		if err != nil {
			return err
		}
		order = current
		outcome = &Outcome{OrderID: current.ID, OrderStatus: current.Status}
		if current.Status.IsFrozen() || current.Status.IsTerminal() {
			return nil
		}

		if confirmation.Stage == enums.EscrowStageDeposit {
			metadata := map[string]any{"transaction_id": confirmation.TransactionID}
			row, released, advanced, err := s.release(ctx, tx, current.ID, enums.EscrowStageDeposit, auth.SystemActorID, metadata)
			if err != nil {
				return err
			}
			if !confirmation.Amount.IsZero() && !confirmation.Amount.Equal(row.DepositAmount) {
				s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
					"paid":     confirmation.Amount.StringFixed(2),
					"expected": row.DepositAmount.StringFixed(2),
				}), "deposit amount differs from escrow bucket")
			}
			outcome.EscrowStage = row.Stage
			outcome.Released = released
			outcome.Advanced = advanced
		}

		moved, err := s.moveStatus(ctx, repo, current, target)
		if err != nil {
			return err
		}
		transitioned = moved
		outcome.OrderStatus = current.Status
		return nil
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) && order != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "payment confirmation ignored")
			return &Outcome{OrderID: order.ID, OrderStatus: order.Status}, nil
		}
		return nil, err
	}
	if !transitioned {
		s.logg.Info(s.logg.WithField(ctx, "order_status", outcome.OrderStatus), "payment confirmation already applied")
		return outcome, nil
	}

	amount := confirmation.Amount
	if amount.IsZero() {
		amount = outcome.Released
	}
	if err := s.notifier.Notify(ctx, notifications.PaymentReceived(order, confirmation.Stage, amount)); err != nil {
		s.logg.Error(ctx, "payment received notification failed", err)
	}
	return outcome, nil
}

func (s *service) Redrive(ctx context.Context, milestoneID uuid.UUID, actor auth.Actor) (*Outcome, error) {
	if !actor.IsAdmin() && actor.Role != enums.ActorRoleSystem {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only an admin may re-drive orchestration")
	}
	if s.milestones == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "milestone reader not configured")
	}
	milestone, err := s.milestones.Get(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	switch milestone.ApprovalStatus {
	case enums.ApprovalStatusPending:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "milestone is still pending review")
	case enums.ApprovalStatusRejected:
		order, err := s.load(ctx, s.repo, milestone.OrderID)
		if err != nil {
			return nil, err
		}
		return &Outcome{OrderID: order.ID, OrderStatus: order.Status}, nil
	}

	actorID := auth.SystemActorID
	if milestone.ReviewedBy != nil {
		actorID = *milestone.ReviewedBy
	}
	s.logg.Info(s.logg.WithMilestoneID(ctx, milestone.ID.String()), "re-driving milestone orchestration")
	return s.OnMilestoneResolved(ctx, MilestoneEvent{
		OrderID:     milestone.OrderID,
		MilestoneID: milestone.ID,
		Milestone:   milestone.Milestone,
		Status:      milestone.ApprovalStatus,
		ActorID:     actorID,
	})
}

// release moves the escrow past stage. A stage that is already behind the
// escrow reports advanced=false instead of failing.
func (s *service) release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, stage enums.EscrowStage, actorID uuid.UUID, metadata map[string]any) (*models.OrderEscrow, decimal.Decimal, bool, error) {
	row, err := s.escrow.GetTx(ctx, tx, orderID)
	if err != nil {
		return nil, decimal.Zero, false, err
	}
	switch {
	case row.Stage == stage:
	case stage.Before(row.Stage):
		return row, decimal.Zero, false, nil
	default:
		return nil, decimal.Zero, false, pkgerrors.Wrap(pkgerrors.CodeStateConflict, escrow.ErrStageMismatch,
			fmt.Sprintf("escrow is at %s; %s cannot be released yet", row.Stage, stage))
	}

	next, _ := stage.Next()
	amount := row.BucketFor(stage)
	updated, err := s.escrow.AdvanceTx(ctx, tx, escrow.AdvanceInput{
		OrderID:  orderID,
		From:     stage,
		To:       next,
		Amount:   amount,
		ActorID:  actorID,
		Metadata: metadata,
	})
	if err != nil {
		if errors.Is(err, escrow.ErrStageMismatch) {
			return row, decimal.Zero, false, nil
		}
		return nil, decimal.Zero, false, err
	}
	return updated, amount, true, nil
}
