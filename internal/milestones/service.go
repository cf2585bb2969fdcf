package milestones

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/stitchpay-backend/internal/notifications"
	"github.com/angelmondragon/stitchpay-backend/pkg/auth"
	"github.com/angelmondragon/stitchpay-backend/pkg/db"
	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stitchpay-backend/pkg/errors"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

var (
	ErrAlreadyResolved   = errors.New("milestone: already resolved")
	ErrInvalidOrderState = errors.New("milestone: order does not accept submissions")
)

const maxNotesLength = 2000

type orderReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// Service is the milestone approval state machine.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*Result, error)
	Resolve(ctx context.Context, input ResolveInput) (*Result, error)
	GetPending(ctx context.Context, orderID uuid.UUID, viewer auth.Actor) ([]PendingMilestone, error)
	Get(ctx context.Context, id uuid.UUID) (*models.OrderMilestone, error)
	ListOverdue(ctx context.Context, limit int) ([]models.OrderMilestone, error)
}

type ServiceParams struct {
	Repo               Repository
	Orders             orderReader
	Notifier           notifications.Service
	Logger             *logger.Logger
	AutoApprovalWindow time.Duration
	Now                func() time.Time
}

type service struct {
	repo     Repository
	orders   orderReader
	notifier notifications.Service
	logg     *logger.Logger
	window   time.Duration
	now      func() time.Time
}

// NewService wires the milestone service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("milestone repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.AutoApprovalWindow <= 0 {
		return nil, fmt.Errorf("auto approval window must be positive")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     params.Repo,
		orders:   params.Orders,
		notifier: params.Notifier,
		logg:     params.Logger,
		window:   params.AutoApprovalWindow,
		now:      now,
	}, nil
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (*Result, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Milestone.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid milestone %q", input.Milestone))
	}
	photos, err := normalizePhotos(input.PhotoURLs)
	if err != nil {
		return nil, err
	}
	notes := normalizeNotes(input.Notes)
	if notes != nil && len(*notes) > maxNotesLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notes too long")
	}

	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if err := AuthorizeSubmission(input.Actor, order); err != nil {
		return nil, err
	}
	if !order.Status.AcceptsMilestones() {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrInvalidOrderState, fmt.Sprintf("order status %s does not accept milestone submissions", order.Status))
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	now := s.now()
	deadline := now.Add(s.window)

	existing, err := s.repo.FindByOrderAndType(ctx, order.ID, input.Milestone)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load milestone")
	}

	var milestone *models.OrderMilestone
	switch {
	case existing == nil:
		milestone = &models.OrderMilestone{
			ID:                   uuid.New(),
			OrderID:              order.ID,
			Milestone:            input.Milestone,
			PhotoURLs:            pq.StringArray(photos),
			Notes:                notes,
			ApprovalStatus:       enums.ApprovalStatusPending,
			Revision:             1,
			SubmittedAt:          now,
			AutoApprovalDeadline: deadline,
		}
		if err := s.repo.Create(ctx, milestone); err != nil {
			if db.IsUniqueViolation(err, "") {
				return nil, pkgerrors.New(pkgerrors.CodeConflict, "milestone submitted concurrently")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create milestone")
		}
	case existing.ApprovalStatus == enums.ApprovalStatusPending || existing.ApprovalStatus == enums.ApprovalStatusRejected:
		reopen := existing.ApprovalStatus == enums.ApprovalStatusRejected
		revision := existing.Revision
		if reopen {
			revision++
		}
		update := SubmissionUpdate{
			PhotoURLs:            photos,
			Notes:                notes,
			Revision:             revision,
			SubmittedAt:          now,
			AutoApprovalDeadline: deadline,
			ClearReview:          reopen,
		}
		applied, err := s.repo.UpdateSubmission(ctx, existing.ID, existing.ApprovalStatus, update)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update milestone")
		}
		if !applied {
			return nil, alreadyResolved(existing.ID)
		}
		milestone = existing
		milestone.PhotoURLs = pq.StringArray(photos)
		milestone.Notes = notes
		milestone.ApprovalStatus = enums.ApprovalStatusPending
		milestone.Revision = revision
		milestone.SubmittedAt = now
		milestone.AutoApprovalDeadline = deadline
		if reopen {
			milestone.CustomerReviewedAt = nil
			milestone.ReviewedBy = nil
			milestone.ReviewComment = nil
			milestone.RejectionReason = nil
		}
	default:
		return nil, alreadyResolved(existing.ID)
	}

	ctx = s.logg.WithMilestoneID(ctx, milestone.ID.String())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"milestone": milestone.Milestone,
		"revision":  milestone.Revision,
		"photos":    len(photos),
	}), "milestone submitted")

	if err := s.notifier.Notify(ctx, notifications.MilestoneSubmitted(order, milestone)); err != nil {
		s.logg.Error(ctx, "milestone submission notification failed", err)
	}
	return &Result{Milestone: milestone, Order: order}, nil
}

func (s *service) Resolve(ctx context.Context, input ResolveInput) (*Result, error) {
	if input.MilestoneID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "milestone id required")
	}
	if !input.Action.IsResolution() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid resolution %q", input.Action))
	}
	comment := strings.TrimSpace(input.Comment)
	if input.Action == enums.ApprovalStatusRejected && comment == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required")
	}
	if len(comment) > maxNotesLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "comment too long")
	}

	milestone, err := s.Get(ctx, input.MilestoneID)
	if err != nil {
		return nil, err
	}
	order, err := s.loadOrder(ctx, milestone.OrderID)
	if err != nil {
		return nil, err
	}
	if err := AuthorizeResolution(input.Actor, order, milestone.Milestone, input.Action); err != nil {
		return nil, err
	}
	if !milestone.ApprovalStatus.CanTransitionTo(input.Action) {
		return nil, alreadyResolved(milestone.ID)
	}

	ctx = s.logg.WithMilestoneID(s.logg.WithOrderID(ctx, order.ID.String()), milestone.ID.String())
	reviewedAt := s.now()
	update := ResolutionUpdate{
		Status:     input.Action,
		ReviewedAt: reviewedAt,
		ReviewedBy: input.Actor.ID,
	}
	if comment != "" {
		update.Comment = &comment
	}
	if input.Action == enums.ApprovalStatusRejected {
		update.RejectionReason = &comment
	}

	applied, err := s.repo.Resolve(ctx, milestone.ID, update)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve milestone")
	}
	if !applied {
		return nil, alreadyResolved(milestone.ID)
	}

	milestone.ApprovalStatus = input.Action
	milestone.CustomerReviewedAt = &reviewedAt
	reviewer := input.Actor.ID
	milestone.ReviewedBy = &reviewer
	milestone.ReviewComment = update.Comment
	milestone.RejectionReason = update.RejectionReason

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"milestone":  milestone.Milestone,
		"resolution": input.Action,
		"actor_role": input.Actor.Role,
	}), "milestone resolved")

	if err := s.notifier.Notify(ctx, notifications.MilestoneResolved(order, milestone)); err != nil {
		s.logg.Error(ctx, "milestone resolution notification failed", err)
	}
	return &Result{Milestone: milestone, Order: order}, nil
}

func (s *service) GetPending(ctx context.Context, orderID uuid.UUID, viewer auth.Actor) ([]PendingMilestone, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !viewer.CanView(order) {
		return nil, forbidden("actor may not view this order")
	}
	rows, err := s.repo.ListPendingByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending milestones")
	}
	now := s.now()
	out := make([]PendingMilestone, 0, len(rows))
	for _, row := range rows {
		out = append(out, pendingFrom(row, now))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.OrderMilestone, error) {
	milestone, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "milestone not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load milestone")
	}
	return milestone, nil
}

func (s *service) ListOverdue(ctx context.Context, limit int) ([]models.OrderMilestone, error) {
	rows, err := s.repo.ListOverdue(ctx, s.now(), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue milestones")
	}
	return rows, nil
}

func (s *service) loadOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func alreadyResolved(id uuid.UUID) error {
	return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrAlreadyResolved, "milestone is not pending review").
		WithDetails(map[string]any{"milestone_id": id})
}

func normalizePhotos(urls []string) ([]string, error) {
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "photo urls must not be blank")
		}
		out = append(out, trimmed)
	}
	if len(out) < MinPhotos || len(out) > MaxPhotos {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("between %d and %d photos required", MinPhotos, MaxPhotos))
	}
	return out, nil
}

func normalizeNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
