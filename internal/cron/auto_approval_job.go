package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/stitchpay-backend/internal/autoapproval"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
)

type sweeper interface {
	Run(ctx context.Context) (*autoapproval.Summary, error)
}

type AutoApprovalJobParams struct {
	Logger  *logger.Logger
	Sweeper sweeper
}

func NewAutoApprovalJob(params AutoApprovalJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	return &autoApprovalJob{logg: params.Logger, sweeper: params.Sweeper}, nil
}

type autoApprovalJob struct {
	logg    *logger.Logger
	sweeper sweeper
}

func (j *autoApprovalJob) Name() string { return "milestone-auto-approval" }

// Run reports the sweep as failed when any item errored so the job failure
// metric tracks milestones needing manual follow-up.
func (j *autoApprovalJob) Run(ctx context.Context) error {
	summary, err := j.sweeper.Run(ctx)
	if err != nil {
		return fmt.Errorf("auto-approval sweep: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"processed":              summary.Processed,
		"auto_approved":          summary.AutoApproved,
		"failed":                 summary.Failed,
		"approved_milestone_ids": summary.ApprovedMilestoneIDs,
	}), "auto-approval job summary")
	return summary.Err()
}
