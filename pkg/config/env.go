package config

const (
	EnvPrefix = "STITCHPAY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "STITCHPAY_APP_ENV"
	EnvPort     = "STITCHPAY_APP_PORT"
	EnvLogLevel = "STITCHPAY_LOG_LEVEL"

	EnvDBDSN  = "STITCHPAY_DB_DSN"
	EnvDBHost = "STITCHPAY_DB_HOST"
	EnvDBUser = "STITCHPAY_DB_USER"
	EnvDBName = "STITCHPAY_DB_NAME"

	EnvRedisURL = "STITCHPAY_REDIS_URL"

	EnvJWTSecret  = "STITCHPAY_JWT_SECRET"
	EnvJWTIssuer  = "STITCHPAY_JWT_ISSUER"
	EnvJWTExpMins = "STITCHPAY_JWT_EXPIRATION_MINUTES"

	EnvEscrowDepositPercent = "STITCHPAY_ESCROW_DEPOSIT_PERCENT"
	EnvEscrowFittingPercent = "STITCHPAY_ESCROW_FITTING_PERCENT"
	EnvEscrowFinalPercent   = "STITCHPAY_ESCROW_FINAL_PERCENT"
	EnvCommissionRate       = "STITCHPAY_COMMISSION_RATE"
	EnvAutoApprovalWindow   = "STITCHPAY_AUTO_APPROVAL_WINDOW"

	EnvWebhookSecret     = "STITCHPAY_WEBHOOK_SECRET"
	EnvWebhookAllowedIPs = "STITCHPAY_WEBHOOK_ALLOWED_IPS"
	EnvCronSecret        = "STITCHPAY_CRON_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
