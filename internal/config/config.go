package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	CORSAllowedOrigins []string
	AdminJWTSecret     string

	// Rate limiting
	RateLimitBackend            string
	RateLimitWindow             time.Duration
	RateLimitCapacity           int
	ConversionRateLimitCapacity int

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Sync gateway
	SyncTargets        []string
	SyncTimeout        time.Duration
	SyncMaxRetries     int
	SyncRetryBaseDelay time.Duration
	CompletionFields   []string

	// Ledger store
	LedgerBackend               string
	GoogleSheetsSpreadsheetID   string
	GoogleSheetsClientEmail     string
	GoogleSheetsPrivateKey      string
	GoogleSheetsCredentialsJSON string
	LedgerSheetName             string
	DatabaseURL                 string
	LedgerTable                 string

	// CRM store
	CRMBaseURL    string
	CRMAPIKey     string
	CRMLocationID string
	CRMTimeout    time.Duration

	// Webhook relay
	WebhookURL         string
	WebhookSecret      string
	WebhookTimeout     time.Duration
	LeadEventsQueueURL string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Lead alerts
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	LeadAlertEmail    string

	// Conversion tracking
	ConversionBackend    string
	ConversionSessionTTL time.Duration
}

// DefaultCompletionFields is the field set that makes a lead complete.
var DefaultCompletionFields = []string{"firstName", "lastName", "email", "propertyCondition", "timeframe", "price"}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),

		RateLimitBackend:            strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "memory")),
		RateLimitWindow:             getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitCapacity:           getEnvAsInt("RATE_LIMIT_CAPACITY", 5),
		ConversionRateLimitCapacity: getEnvAsInt("CONVERSION_RATE_LIMIT_CAPACITY", 10),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SyncTargets:        getEnvAsList("SYNC_TARGETS", []string{"ledger", "crm"}),
		SyncTimeout:        getEnvAsDuration("SYNC_TIMEOUT", 10*time.Second),
		SyncMaxRetries:     getEnvAsInt("SYNC_MAX_RETRIES", 2),
		SyncRetryBaseDelay: getEnvAsDuration("SYNC_RETRY_BASE_DELAY", 500*time.Millisecond),
		CompletionFields:   getEnvAsList("COMPLETION_FIELDS", DefaultCompletionFields),

		LedgerBackend:               strings.ToLower(getEnv("LEDGER_BACKEND", "memory")),
		GoogleSheetsSpreadsheetID:   getEnv("GOOGLE_SHEETS_SPREADSHEET_ID", ""),
		GoogleSheetsClientEmail:     getEnv("GOOGLE_SHEETS_CLIENT_EMAIL", ""),
		GoogleSheetsPrivateKey:      strings.ReplaceAll(getEnv("GOOGLE_SHEETS_PRIVATE_KEY", ""), `\n`, "\n"),
		GoogleSheetsCredentialsJSON: getEnv("GOOGLE_SHEETS_CREDENTIALS_JSON", ""),
		LedgerSheetName:             getEnv("LEDGER_SHEET_NAME", "Form Submissions"),
		DatabaseURL:                 getEnv("DATABASE_URL", ""),
		LedgerTable:                 getEnv("LEDGER_TABLE", "lead_ledger"),

		CRMBaseURL:    getEnv("CRM_BASE_URL", "https://rest.gohighlevel.com/v1"),
		CRMAPIKey:     getEnv("GOHIGHLEVEL_API_KEY", ""),
		CRMLocationID: getEnv("GO_HIGH_LEVEL_LOCATION_ID", ""),
		CRMTimeout:    getEnvAsDuration("CRM_TIMEOUT", 5*time.Second),

		WebhookURL:         getEnv("WEBHOOK_URL", ""),
		WebhookSecret:      getEnv("WEBHOOK_SECRET", ""),
		WebhookTimeout:     getEnvAsDuration("WEBHOOK_TIMEOUT", 5*time.Second),
		LeadEventsQueueURL: getEnv("LEAD_EVENTS_QUEUE_URL", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Cash Offer Leads"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		LeadAlertEmail:    getEnv("LEAD_ALERT_EMAIL", ""),

		ConversionBackend:    strings.ToLower(getEnv("CONVERSION_BACKEND", "memory")),
		ConversionSessionTTL: getEnvAsDuration("CONVERSION_SESSION_TTL", 24*time.Hour),
	}
}

// SyncTargetEnabled reports whether name is listed in SYNC_TARGETS.
func (c *Config) SyncTargetEnabled(name string) bool {
	for _, t := range c.SyncTargets {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blank entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
