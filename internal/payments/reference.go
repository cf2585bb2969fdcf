package payments

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/stitchpay-backend/pkg/enums"
	"github.com/google/uuid"
)

const referencePrefix = "ORDER_"

// Reference is the correlation string sent to the provider with each charge.
func Reference(orderID uuid.UUID, stage enums.EscrowStage) string {
	return fmt.Sprintf("%s%s_%s", referencePrefix, orderID, stage)
}

// ParseReference recovers the order and stage from a provider reference.
func ParseReference(ref string) (uuid.UUID, enums.EscrowStage, error) {
	trimmed := strings.TrimSpace(ref)
	if !strings.HasPrefix(strings.ToUpper(trimmed), referencePrefix) {
		return uuid.Nil, "", fmt.Errorf("reference %q missing %s prefix", ref, referencePrefix)
	}
	rest := trimmed[len(referencePrefix):]
	idx := strings.LastIndex(rest, "_")
	if idx <= 0 {
		return uuid.Nil, "", fmt.Errorf("reference %q missing stage", ref)
	}
	orderID, err := uuid.Parse(rest[:idx])
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("reference %q has invalid order id: %w", ref, err)
	}
	stage, err := enums.ParseEscrowStage(rest[idx+1:])
	if err != nil {
		return uuid.Nil, "", err
	}
	return orderID, stage, nil
}

// idempotencyKey is stable per (order, stage) so a retried request never
// charges twice. Square caps keys at 45 characters.
func idempotencyKey(orderID uuid.UUID, stage enums.EscrowStage) string {
	return uuid.NewSHA1(orderID, []byte(stage)).String()
}
