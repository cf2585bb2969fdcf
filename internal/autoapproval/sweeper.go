package autoapproval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stitchpay-backend/internal/milestones"
	"github.com/angelmondragon/stitchpay-backend/internal/orders"
	"github.com/angelmondragon/stitchpay-backend/pkg/auth"
	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
	"github.com/angelmondragon/stitchpay-backend/pkg/metrics"
)

const (
	defaultBatchLimit = 200
	autoApprovalNote  = "Automatically approved after deadline"
)

type milestoneResolver interface {
	ListOverdue(ctx context.Context, limit int) ([]models.OrderMilestone, error)
	Resolve(ctx context.Context, input milestones.ResolveInput) (*milestones.Result, error)
}

type releaser interface {
	OnMilestoneResolved(ctx context.Context, event orders.MilestoneEvent) (*orders.Outcome, error)
}

// Summary aggregates one sweep. Failed counts milestones that could not be
// auto-approved; release problems on approved milestones only add to Errors.
type Summary struct {
	Processed            int         `json:"processed"`
	AutoApproved         int         `json:"autoApproved"`
	Skipped              int         `json:"skipped"`
	Failed               int         `json:"failed"`
	ApprovedMilestoneIDs []uuid.UUID `json:"approvedMilestoneIds"`
	Errors               []string    `json:"errors"`

	err error
}

// Err combines every per-item error of the sweep.
func (s *Summary) Err() error {
	if s == nil {
		return nil
	}
	return s.err
}

func (s *Summary) record(milestoneID uuid.UUID, step string, err error) {
	wrapped := fmt.Errorf("milestone %s: %s: %w", milestoneID, step, err)
	s.Errors = append(s.Errors, wrapped.Error())
	s.err = multierr.Append(s.err, wrapped)
}

type SweeperParams struct {
	Milestones milestoneResolver
	Orders     releaser
	Logger     *logger.Logger
	Metrics    *metrics.SettlementMetrics
	BatchLimit int
}

// Sweeper auto-approves milestones whose review window elapsed.
type Sweeper struct {
	milestones milestoneResolver
	orders     releaser
	logg       *logger.Logger
	metrics    *metrics.SettlementMetrics
	limit      int
}

func NewSweeper(params SweeperParams) (*Sweeper, error) {
	if params.Milestones == nil {
		return nil, errors.New("milestone service required")
	}
	if params.Orders == nil {
		return nil, errors.New("order orchestrator required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	limit := params.BatchLimit
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	return &Sweeper{
		milestones: params.Milestones,
		orders:     params.Orders,
		logg:       params.Logger,
		metrics:    params.Metrics,
		limit:      limit,
	}, nil
}

// Run processes overdue milestones oldest deadline first. Items are
// independent; one failure never stops the batch. The returned error is
// only set when the overdue query itself fails.
func (s *Sweeper) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		ApprovedMilestoneIDs: []uuid.UUID{},
		Errors:               []string{},
	}
	overdue, err := s.milestones.ListOverdue(ctx, s.limit)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	for _, milestone := range overdue {
		if ctx.Err() != nil {
			summary.record(milestone.ID, "sweep", ctx.Err())
			break
		}
		summary.Processed++
		s.process(ctx, milestone, summary)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"processed":     summary.Processed,
		"auto_approved": summary.AutoApproved,
		"skipped":       summary.Skipped,
		"failed":        summary.Failed,
		"errors":        len(summary.Errors),
		"duration_ms":   time.Since(start).Milliseconds(),
	}), "auto-approval sweep complete")
	return summary, nil
}

func (s *Sweeper) process(ctx context.Context, milestone models.OrderMilestone, summary *Summary) {
	ctx = s.logg.WithMilestoneID(s.logg.WithOrderID(ctx, milestone.OrderID.String()), milestone.ID.String())

	result, err := s.milestones.Resolve(ctx, milestones.ResolveInput{
		MilestoneID: milestone.ID,
		Action:      enums.ApprovalStatusAutoApproved,
		Actor:       auth.System(),
		Comment:     autoApprovalNote,
	})
	if err != nil {
		if errors.Is(err, milestones.ErrAlreadyResolved) {
			summary.Skipped++
			s.metrics.IncSweepItem("skipped")
			s.logg.Info(ctx, "milestone resolved before auto-approval")
			return
		}
		summary.Failed++
		summary.record(milestone.ID, "auto-approve", err)
		s.metrics.IncSweepItem("failed")
		s.logg.Error(ctx, "auto-approval failed", err)
		return
	}

	summary.AutoApproved++
	summary.ApprovedMilestoneIDs = append(summary.ApprovedMilestoneIDs, milestone.ID)
	s.metrics.IncSweepItem("auto_approved")

	resolved := result.Milestone
	if _, err := s.orders.OnMilestoneResolved(ctx, orders.MilestoneEvent{
		OrderID:     resolved.OrderID,
		MilestoneID: resolved.ID,
		Milestone:   resolved.Milestone,
		Status:      resolved.ApprovalStatus,
		ActorID:     auth.SystemActorID,
	}); err != nil {
		summary.record(milestone.ID, "release", err)
		s.metrics.IncSweepItem("release_failed")
		s.logg.Error(ctx, "release after auto-approval failed; milestone stays auto-approved", err)
	}
}
