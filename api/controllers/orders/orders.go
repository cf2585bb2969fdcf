package orders

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stitchpay-backend/api/middleware"
	"github.com/angelmondragon/stitchpay-backend/api/responses"
	"github.com/angelmondragon/stitchpay-backend/api/validators"
	"github.com/angelmondragon/stitchpay-backend/internal/escrow"
	internalorders "github.com/angelmondragon/stitchpay-backend/internal/orders"
	"github.com/angelmondragon/stitchpay-backend/pkg/auth"
	"github.com/angelmondragon/stitchpay-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stitchpay-backend/pkg/errors"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
)

type orderService interface {
	Create(ctx context.Context, input internalorders.CreateInput) (*internalorders.CreateResult, error)
	Get(ctx context.Context, id uuid.UUID, viewer auth.Actor) (*models.Order, error)
	OpenDispute(ctx context.Context, input internalorders.DisputeInput) (*models.Order, error)
}

type escrowReader interface {
	GetStatus(ctx context.Context, orderID uuid.UUID) (*escrow.Status, error)
}

type createOrderRequest struct {
	CustomerID      *string         `json:"customerId" validate:"omitempty,uuid"`
	TailorID        string          `json:"tailorId" validate:"required,uuid"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	CustomerContact string          `json:"customerContact" validate:"required,max=255"`
	PaymentSourceID *string         `json:"paymentSourceId" validate:"omitempty,max=255"`
}

type disputeRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

// Create opens an order and its escrow at checkout. Customers order for
// themselves; admins may place an order on behalf of a customer.
func Create(svc orderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing actor"))
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customerID := actor.ID
		if req.CustomerID != nil {
			customerID = uuid.MustParse(*req.CustomerID)
		}
		result, err := svc.Create(r.Context(), internalorders.CreateInput{
			CustomerID:      customerID,
			TailorID:        uuid.MustParse(req.TailorID),
			TotalAmount:     req.TotalAmount,
			CustomerContact: req.CustomerContact,
			PaymentSourceID: req.PaymentSourceID,
			Actor:           actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// EscrowStatus returns the escrow projection for a participant of the order.
func EscrowStatus(svc orderService, escrowSvc escrowReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || escrowSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		actor, _ := middleware.ActorFromContext(r.Context())
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := svc.Get(r.Context(), orderID, actor); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := escrowSvc.GetStatus(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

// OpenDispute freezes an order once it is eligible for dispute.
func OpenDispute(svc orderService, logg *logger.Logger) http.HandlerFunc {
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
		var req disputeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.OpenDispute(r.Context(), internalorders.DisputeInput{
			OrderID: orderID,
			Actor:   actor,
			Reason:  validators.SanitizeString(req.Reason, 2000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
