package milestones

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/stitchpay-backend/api/middleware"
	"github.com/angelmondragon/stitchpay-backend/api/responses"
	"github.com/angelmondragon/stitchpay-backend/api/validators"
	internalmilestones "github.com/angelmondragon/stitchpay-backend/internal/milestones"
	"github.com/angelmondragon/stitchpay-backend/internal/orders"
	"github.com/angelmondragon/stitchpay-backend/pkg/auth"
	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stitchpay-backend/pkg/errors"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
)

const maxTextLen = 2000

type milestoneService interface {
	Submit(ctx context.Context, input internalmilestones.SubmitInput) (*internalmilestones.Result, error)
	Resolve(ctx context.Context, input internalmilestones.ResolveInput) (*internalmilestones.Result, error)
	GetPending(ctx context.Context, orderID uuid.UUID, viewer auth.Actor) ([]internalmilestones.PendingMilestone, error)
}

type orchestrator interface {
	OnMilestoneSubmitted(ctx context.Context, event orders.MilestoneEvent) (*orders.Outcome, error)
	OnMilestoneResolved(ctx context.Context, event orders.MilestoneEvent) (*orders.Outcome, error)
	Redrive(ctx context.Context, milestoneID uuid.UUID, actor auth.Actor) (*orders.Outcome, error)
}

type submitRequest struct {
	Milestone string   `json:"milestone" validate:"required,max=64"`
	PhotoURLs []string `json:"photoUrls" validate:"required,min=1,max=5,dive,required,url"`
	Notes     *string  `json:"notes" validate:"omitempty,max=2000"`
}

type resolveRequest struct {
	Action  string `json:"action" validate:"required,oneof=APPROVED REJECTED approved rejected"`
	Comment string `json:"comment" validate:"max=2000"`
}

// milestoneResponse pairs the committed milestone with what settlement did.
// SettlementError is set when the resolution committed but escrow could not
// follow; an admin re-drive picks it up.
type milestoneResponse struct {
	Milestone       *models.OrderMilestone `json:"milestone"`
	Settlement      *orders.Outcome        `json:"settlement,omitempty"`
	SettlementError string                 `json:"settlementError,omitempty"`
}

// Pending lists milestones awaiting review with urgency annotations.
func Pending(svc milestoneService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "milestone service unavailable"))
			return
		}
		actor, _ := middleware.ActorFromContext(r.Context())
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pending, err := svc.GetPending(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"milestones": pending})
	}
}

// Submit records tailor progress and nudges the coarse order status.
func Submit(svc milestoneService, orch orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || orch == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "milestone service unavailable"))
			return
		}
		actor, _ := middleware.ActorFromContext(r.Context())
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req submitRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		milestoneType, err := enums.ParseMilestoneType(strings.ToUpper(strings.TrimSpace(req.Milestone)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid milestone").WithDetails(map[string]any{"field": "milestone"}))
			return
		}

		result, err := svc.Submit(r.Context(), internalmilestones.SubmitInput{
			OrderID:   orderID,
			Milestone: milestoneType,
			PhotoURLs: req.PhotoURLs,
			Notes:     req.Notes,
			Actor:     actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := milestoneResponse{Milestone: result.Milestone}
		outcome, err := orch.OnMilestoneSubmitted(r.Context(), eventFor(result.Milestone, actor.ID))
		if err != nil {
			logg.Error(r.Context(), "order status update after submission failed", err)
		} else {
			resp.Settlement = outcome
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

// Resolve applies a review decision, then settles escrow for it. The
// decision stands even when settlement fails.
func Resolve(svc milestoneService, orch orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || orch == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "milestone service unavailable"))
			return
		}
		actor, _ := middleware.ActorFromContext(r.Context())
		milestoneID, err := validators.ParseUUIDParam(r, "milestoneId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req resolveRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		action, err := enums.ParseApprovalStatus(strings.ToUpper(req.Action))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action"))
			return
		}

		result, err := svc.Resolve(r.Context(), internalmilestones.ResolveInput{
			MilestoneID: milestoneID,
			Action:      action,
			Actor:       actor,
			Comment:     validators.SanitizeString(req.Comment, maxTextLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := milestoneResponse{Milestone: result.Milestone}
		outcome, err := orch.OnMilestoneResolved(r.Context(), eventFor(result.Milestone, actor.ID))
		if err != nil {
			ctx := logg.WithMilestoneID(r.Context(), milestoneID.String())
			logg.Error(ctx, "settlement after resolution failed", err)
			resp.SettlementError = publicMessage(err)
		} else {
			resp.Settlement = outcome
		}
		responses.WriteSuccess(w, resp)
	}
}

// AdminRedrive re-runs settlement for a resolved milestone.
func AdminRedrive(orch orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if orch == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, _ := middleware.ActorFromContext(r.Context())
		milestoneID, err := validators.ParseUUIDParam(r, "milestoneId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		outcome, err := orch.Redrive(r.Context(), milestoneID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}

func eventFor(m *models.OrderMilestone, actorID uuid.UUID) orders.MilestoneEvent {
	return orders.MilestoneEvent{
		OrderID:     m.OrderID,
		MilestoneID: m.ID,
		Milestone:   m.Milestone,
		Status:      m.ApprovalStatus,
		ActorID:     actorID,
	}
}

func publicMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return pkgerrors.MetadataFor(typed.Code()).PublicMessage
	}
	return pkgerrors.MetadataFor(pkgerrors.CodeInternal).PublicMessage
}
