package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/stitchpay-backend/api/middleware"
	"github.com/angelmondragon/stitchpay-backend/api/responses"
	"github.com/angelmondragon/stitchpay-backend/api/validators"
	"github.com/angelmondragon/stitchpay-backend/internal/escrow"
	internalorders "github.com/angelmondragon/stitchpay-backend/internal/orders"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stitchpay-backend/pkg/errors"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
)

type escrowValidator interface {
	Validate(ctx context.Context, orderID uuid.UUID) (*escrow.ValidationResult, error)
}

type disputeResolver interface {
	ResolveDispute(ctx context.Context, input internalorders.ResolveDisputeInput) (*internalorders.Outcome, error)
}

type overrideRequest struct {
	EscrowStage string `json:"escrowStage" validate:"omitempty,max=32"`
	OrderStatus string `json:"orderStatus" validate:"required,max=32"`
	Reason      string `json:"reason" validate:"required,max=2000"`
}

// AdminValidateEscrow runs the read-only reconciliation check. A mismatch is
// reported in the body, not as an error status.
func AdminValidateEscrow(svc escrowValidator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Validate(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminOverrideEscrow closes a dispute, optionally rewinding the escrow stage.
func AdminOverrideEscrow(svc disputeResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, _ := middleware.ActorFromContext(r.Context())
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req overrideRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(strings.ToUpper(strings.TrimSpace(req.OrderStatus)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status"))
			return
		}
		var stage enums.EscrowStage
		if req.EscrowStage != "" {
			if stage, err = enums.ParseEscrowStage(req.EscrowStage); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid escrow stage"))
				return
			}
		}

		outcome, err := svc.ResolveDispute(r.Context(), internalorders.ResolveDisputeInput{
			OrderID:     orderID,
			Actor:       actor,
			EscrowStage: stage,
			Status:      status,
			Reason:      validators.SanitizeString(req.Reason, 2000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}
