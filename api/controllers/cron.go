package controllers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/angelmondragon/stitchpay-backend/api/responses"
	"github.com/angelmondragon/stitchpay-backend/internal/autoapproval"
	pkgerrors "github.com/angelmondragon/stitchpay-backend/pkg/errors"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
)

type sweepRunner interface {
	Run(ctx context.Context) (*autoapproval.Summary, error)
}

// CronAutoApprove lets an external scheduler trigger the auto-approval sweep.
// The caller presents the shared cron secret as a bearer token; with no
// secret configured the endpoint refuses every request.
func CronAutoApprove(secret string, sweeper sweepRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if strings.TrimSpace(secret) == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "cron trigger is not configured"))
			return
		}
		token, ok := bearerToken(r)
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid cron token"))
			return
		}
		if sweeper == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sweeper unavailable"))
			return
		}

		summary, err := sweeper.Run(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if summary.Err() != nil {
			logg.Warn(logg.WithFields(ctx, map[string]any{
				"processed":     summary.Processed,
				"auto_approved": summary.AutoApproved,
				"failed":        summary.Failed,
			}), "auto-approval sweep finished with errors")
		}
		responses.WriteSuccess(w, summary)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
