// Package config loads application configuration from the environment,
// following the reviewed repo's flat-struct-plus-Load() convention rather
// than a structured config framework.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every configuration knob enumerated in the external
// interfaces section: workflow concurrency, matcher policy, extractor
// tiers, ERP endpoints, notification rate limits, and ambient stack
// settings (db, redis, observability).
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Workflow WorkflowConfig
	Matcher  MatcherConfig
	Extractor ExtractorConfig
	ERP       ERPConfig
	Notify    NotifyConfig
	Email     EmailConfig
	Slack     SlackConfig
}

// WorkflowConfig controls the Orchestrator's concurrency and timeout model.
type WorkflowConfig struct {
	MaxConcurrentTransactions int
	WorkflowTimeout           time.Duration
	RecoverySweepInterval     time.Duration
	RecoveryThreshold         time.Duration
	RecoverySweepBatchSize    int
	EnableAutonomousERPUpdates bool
	DefaultERPSystem          string
}

// MatcherConfig carries the Matcher's policy knobs (spec.md §4.3/§6).
type MatcherConfig struct {
	AmountTolerancePct      float64
	ShortWriteOffThreshold  string
	AutoApplyCeiling        string
	RequireCustomerMatch    bool
	AllowPartialAllocation  bool
	PerfectMatchOnly        bool
}

// ExtractorConfig sets the default tier and cascade threshold.
type ExtractorConfig struct {
	DefaultTierPreference  string
	ConfidenceThreshold    float64
	LayoutEndpoint         string
	CloudEndpoint          string
	CloudAPIKey            string
	Timeout                time.Duration
	MaxRetries             int
}

// ERPConfig configures per-system connection pooling. Per-system
// credentials/endpoints are supplied via Systems, one entry per
// configured erp_system name.
type ERPConfig struct {
	PoolSize        int
	PostTimeout     time.Duration
	FetchTimeout    int
	InvoiceCacheTTL time.Duration
	Systems         map[string]ERPSystemConfig
}

// ERPSystemConfig is the resolved credential/endpoint bundle for one
// erp_system entry, keyed by provider (netsuite/sap/quickbooks/generic).
type ERPSystemConfig struct {
	Provider string
	BaseURL  string
	Settings map[string]string
}

// NotifyConfig controls the Communicator's rate limiting.
type NotifyConfig struct {
	RatePerRecipient     float64
	BurstPerRecipient    int
	DeliveryTimeout      time.Duration
	MaxDeliveryRetries   int
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type SlackConfig struct {
	WebhookURL string
	DefaultChannel string
}

// Load reads configuration from the environment (and an optional .env
// file), applying the defaults enumerated in spec.md §6.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_NAME", "cashapp"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DB_TYPE", "postgres"),
		DBHost:            getenv("DB_HOST", "localhost"),
		DBPort:            getenv("DB_PORT", "5432"),
		DBName:            getenv("DB_NAME", "cashapp"),
		DBUser:            getenv("DB_USER", "postgres"),
		DBPassword:        getenv("DB_PASSWORD", ""),
		DBSSLMode:         getenv("DB_SSL_MODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DB_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DB_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DB_CONN_MAX_LIFETIME_MINUTES", 30)),
		DBConnMaxIdleTime: int(getenvInt64("DB_CONN_MAX_IDLE_MINUTES", 10)),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),

		Workflow: WorkflowConfig{
			MaxConcurrentTransactions:  int(getenvInt64("MAX_CONCURRENT_TRANSACTIONS", 10)),
			WorkflowTimeout:            getenvDuration("WORKFLOW_TIMEOUT", 10*time.Minute),
			RecoverySweepInterval:      getenvDuration("RECOVERY_SWEEP_INTERVAL", time.Minute),
			RecoveryThreshold:          getenvDuration("RECOVERY_THRESHOLD", 15*time.Minute),
			RecoverySweepBatchSize:     int(getenvInt64("RECOVERY_SWEEP_BATCH_SIZE", 50)),
			EnableAutonomousERPUpdates: getenvBool("ENABLE_AUTONOMOUS_ERP_UPDATES", true),
			DefaultERPSystem:           getenv("DEFAULT_ERP_SYSTEM", ""),
		},

		Matcher: MatcherConfig{
			AmountTolerancePct:     getenvFloat("AMOUNT_TOLERANCE_PCT", 0),
			ShortWriteOffThreshold: getenv("SHORT_WRITE_OFF_THRESHOLD", "0.00"),
			AutoApplyCeiling:       getenv("AUTO_APPLY_CEILING", ""),
			RequireCustomerMatch:   getenvBool("REQUIRE_CUSTOMER_MATCH", false),
			AllowPartialAllocation: getenvBool("ALLOW_PARTIAL_ALLOCATION", true),
			PerfectMatchOnly:       getenvBool("PERFECT_MATCH_ONLY", false),
		},

		Extractor: ExtractorConfig{
			DefaultTierPreference: getenv("EXTRACTOR_TIER_PREFERENCE", "Auto"),
			ConfidenceThreshold:   getenvFloat("EXTRACTOR_CONFIDENCE_THRESHOLD", 0.85),
			LayoutEndpoint:        getenv("EXTRACTOR_LAYOUT_ENDPOINT", ""),
			CloudEndpoint:         getenv("EXTRACTOR_CLOUD_ENDPOINT", ""),
			CloudAPIKey:           getenv("EXTRACTOR_CLOUD_API_KEY", ""),
			Timeout:               getenvDuration("EXTRACTOR_TIMEOUT", 30*time.Second),
			MaxRetries:            int(getenvInt64("EXTRACTOR_MAX_RETRIES", 2)),
		},

		ERP: ERPConfig{
			PoolSize:        int(getenvInt64("ERP_POOL_SIZE", 8)),
			PostTimeout:     getenvDuration("ERP_POST_TIMEOUT", 30*time.Second),
			FetchTimeout:    int(getenvInt64("ERP_FETCH_TIMEOUT_SECONDS", 15)),
			InvoiceCacheTTL: getenvDuration("ERP_INVOICE_CACHE_TTL", 30*time.Second),
			Systems:         map[string]ERPSystemConfig{},
		},

		Notify: NotifyConfig{
			RatePerRecipient:   getenvFloat("NOTIFICATION_RATE_PER_RECIPIENT", 10.0/60.0),
			BurstPerRecipient:  int(getenvInt64("NOTIFICATION_BURST_PER_RECIPIENT", 10)),
			DeliveryTimeout:    getenvDuration("NOTIFICATION_DELIVERY_TIMEOUT", 20*time.Second),
			MaxDeliveryRetries: int(getenvInt64("NOTIFICATION_MAX_RETRIES", 3)),
		},

		Email: EmailConfig{
			SMTPHost:     getenv("SMTP_HOST", "localhost"),
			SMTPPort:     int(getenvInt64("SMTP_PORT", 587)),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "cashapp@example.com"),
		},

		Slack: SlackConfig{
			WebhookURL:     getenv("SLACK_WEBHOOK_URL", ""),
			DefaultChannel: getenv("SLACK_DEFAULT_CHANNEL", "#ar-alerts"),
		},
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
