package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	Escrow        EscrowConfig
	Webhook       WebhookConfig
	Cron          CronConfig
	Square        SquareConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Notifications NotificationsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Escrow.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STITCHPAY_APP_ENV" required:"true"`
	Port         string `envconfig:"STITCHPAY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STITCHPAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STITCHPAY_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STITCHPAY_LOG_FORMAT"`
	// CORSOrigins lists the dashboards allowed to call the API from a browser.
	CORSOrigins []string `envconfig:"STITCHPAY_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"STITCHPAY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STITCHPAY_DB_DSN"`
	Driver string `envconfig:"STITCHPAY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STITCHPAY_DB_HOST"`
	LegacyPort     int    `envconfig:"STITCHPAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STITCHPAY_DB_USER"`
	LegacyPassword string `envconfig:"STITCHPAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"STITCHPAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"STITCHPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STITCHPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STITCHPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STITCHPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STITCHPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STITCHPAY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STITCHPAY_REDIS_ADDR"`
	Password     string        `envconfig:"STITCHPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"STITCHPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STITCHPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STITCHPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STITCHPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STITCHPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STITCHPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STITCHPAY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STITCHPAY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STITCHPAY_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STITCHPAY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STITCHPAY_AUTO_MIGRATE" default:"false"`
}

// EscrowConfig is the single declared policy for the three-stage split,
// the platform commission and the milestone review window.
type EscrowConfig struct {
	DepositPercent        decimal.Decimal `envconfig:"STITCHPAY_ESCROW_DEPOSIT_PERCENT" default:"25"`
	FittingPercent        decimal.Decimal `envconfig:"STITCHPAY_ESCROW_FITTING_PERCENT" default:"50"`
	FinalPercent          decimal.Decimal `envconfig:"STITCHPAY_ESCROW_FINAL_PERCENT" default:"25"`
	CommissionRate        decimal.Decimal `envconfig:"STITCHPAY_COMMISSION_RATE" default:"0.20"`
	ProcessingFeeRate     decimal.Decimal `envconfig:"STITCHPAY_PROCESSING_FEE_RATE" default:"0"`
	AutoApprovalWindow    time.Duration   `envconfig:"STITCHPAY_AUTO_APPROVAL_WINDOW" default:"48h"`
	DisputeRejectionLimit int             `envconfig:"STITCHPAY_DISPUTE_REJECTION_LIMIT" default:"2"`
}

func (e EscrowConfig) validate() error {
	sum := e.DepositPercent.Add(e.FittingPercent).Add(e.FinalPercent)
	if !sum.Equal(decimal.NewFromInt(100)) {
		return fmt.Errorf("escrow stage percentages must sum to 100, got %s", sum.String())
	}
	for name, pct := range map[string]decimal.Decimal{
		EnvEscrowDepositPercent: e.DepositPercent,
		EnvEscrowFittingPercent: e.FittingPercent,
		EnvEscrowFinalPercent:   e.FinalPercent,
	} {
		if pct.IsNegative() {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if e.CommissionRate.IsNegative() || e.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be within [0,1]", EnvCommissionRate)
	}
	if e.AutoApprovalWindow <= 0 {
		return fmt.Errorf("%s must be positive", EnvAutoApprovalWindow)
	}
	return nil
}

type WebhookConfig struct {
	Secret        string        `envconfig:"STITCHPAY_WEBHOOK_SECRET"`
	AllowedIPs    []string      `envconfig:"STITCHPAY_WEBHOOK_ALLOWED_IPS"`
	DedupTTL      time.Duration `envconfig:"STITCHPAY_WEBHOOK_DEDUP_TTL" default:"5m"`
	UseRedisDedup bool          `envconfig:"STITCHPAY_WEBHOOK_REDIS_DEDUP" default:"true"`
}

type CronConfig struct {
	Secret   string        `envconfig:"STITCHPAY_CRON_SECRET"`
	Interval time.Duration `envconfig:"STITCHPAY_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"STITCHPAY_CRON_LOCK_TTL" default:"10m"`
	// BatchLimit caps how many overdue milestones one sweep picks up.
	BatchLimit int `envconfig:"STITCHPAY_CRON_BATCH_LIMIT" default:"200"`
}

type SquareConfig struct {
	AccessToken    string        `envconfig:"STITCHPAY_SQUARE_ACCESS_TOKEN"`
	Env            string        `envconfig:"STITCHPAY_SQUARE_ENV" default:"sandbox"`
	LocationID     string        `envconfig:"STITCHPAY_SQUARE_LOCATION_ID"`
	RequestTimeout time.Duration `envconfig:"STITCHPAY_SQUARE_REQUEST_TIMEOUT" default:"10s"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STITCHPAY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STITCHPAY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STITCHPAY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"STITCHPAY_PUBSUB_NOTIFICATION_TOPIC" default:"stitchpay-notifications"`
}

type NotificationsConfig struct {
	SendTimeout time.Duration `envconfig:"STITCHPAY_NOTIFICATION_SEND_TIMEOUT" default:"5s"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
