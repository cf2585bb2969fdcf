package notifications

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/stitchpay-backend/pkg/errors"
	"github.com/angelmondragon/stitchpay-backend/pkg/logger"
	"github.com/google/uuid"
)

const defaultSendTimeout = 5 * time.Second

// Service dispatches notifications with a bounded timeout. Callers treat
// failures as log-only; state has already been committed.
type Service interface {
	Notify(ctx context.Context, n Notification) error
}

type ServiceParams struct {
	Sender  Sender
	Logger  *logger.Logger
	Timeout time.Duration
	Now     func() time.Time
}

type service struct {
	sender  Sender
	logg    *logger.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewService wires notification dispatch.
func NewService(params ServiceParams) (Service, error) {
	if params.Sender == nil {
		return nil, fmt.Errorf("notification sender required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{sender: params.Sender, logg: params.Logger, timeout: timeout, now: now}, nil
}

func (s *service) Notify(ctx context.Context, n Notification) error {
	if !n.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid notification type %q", n.Type))
	}
	if n.RecipientID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification recipient required")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.sender.Send(sendCtx, n); err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"notification_type": n.Type,
			"order_id":          n.OrderID.String(),
			"error":             err.Error(),
		})
		s.logg.Warn(logCtx, "notification delivery failed")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send notification")
	}
	return nil
}
