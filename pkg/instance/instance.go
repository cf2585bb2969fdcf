package instance

import "github.com/angelmondragon/stitchpay-backend/pkg/env"

// GetID identifies the running process in logs and cron lease tokens.
func GetID() string {
	if id, ok := env.First("STITCHPAY_INSTANCE_ID", "DYNO", "HOSTNAME"); ok {
		return id
	}
	return "local"
}
