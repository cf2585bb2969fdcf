package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stitchpay-backend/api/responses"
	"github.com/angelmondragon/stitchpay-backend/api/validators"
	paymentwebhook "github.com/angelmondragon/stitchpay-backend/internal/webhooks/payment"
	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stitchpay-backend/pkg/errors"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

type paymentProcessor interface {
	Process(ctx context.Context, event paymentwebhook.Event) (*paymentwebhook.Result, error)
}

type webhookVerifier interface {
	CheckSource(r *http.Request) error
	CheckSignature(r *http.Request, body []byte) error
}

type paymentWebhookPayload struct {
	TransactionID string          `json:"transactionId" validate:"required,max=128"`
	Status        string          `json:"status" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Reference     string          `json:"reference" validate:"max=128"`
	Provider      string          `json:"provider" validate:"omitempty,max=32"`
}

// PaymentWebhook receives provider payment status callbacks. Callers are
// authenticated before the body is parsed; repeats are acknowledged with 200.
func PaymentWebhook(verifier webhookVerifier, svc paymentProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if verifier == nil || svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		if err := verifier.CheckSource(r); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		if err := verifier.CheckSignature(r, body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload paymentWebhookPayload
		if err := validators.DecodeJSONBytes(body, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status, err := enums.ParsePaymentStatus(payload.Status)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").WithDetails(map[string]any{"field": "status"}))
			return
		}
		if payload.Amount.IsNegative() {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative").WithDetails(map[string]any{"field": "amount"}))
			return
		}

		result, err := svc.Process(ctx, paymentwebhook.Event{
			Provider:      payload.Provider,
			TransactionID: payload.TransactionID,
			Status:        status,
			Amount:        payload.Amount,
			Reference:     payload.Reference,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if result.Duplicate {
			responses.WriteSuccess(w, map[string]any{"status": "already_processed"})
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "processed", "result": result})
	}
}
