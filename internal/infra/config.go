package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	GoogleClientID string
	GoogleIssuer   string

	VisionAPIKey  string
	VisionModel   string
	VisionBaseURL string

	StoragePath       string
	StorageBaseURL    string
	StorageSignSecret string

	PublicBaseURL   string
	QueueURL        string
	QueueToken      string
	QueueSigningKey string

	BillingAPIKey          string
	BillingStoreID         string
	BillingWebhookSecret   string
	BillingRedirectURL     string
	BillingPortalURL       string
	VariantBasicOneTime    string
	VariantProMonthly      string
	VariantProAnnual       string
	VariantUltimateMonthly string
	VariantUltimateAnnual  string

	BrevoAPIKey    string
	BrevoFromEmail string
	BrevoFromName  string

	GeoIPDBPath      string
	CORSOrigins      []string
	DBMaxConns       int32
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	SweeperCutoff    time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. Required values and the completeness of the billing
// variant map are checked here so a misconfigured process refuses to start
// instead of failing per request.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		GoogleClientID: os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleIssuer:   getEnv("GOOGLE_ISSUER", "https://accounts.google.com"),

		VisionAPIKey:  os.Getenv("VISION_API_KEY"),
		VisionModel:   getEnv("VISION_MODEL", "gpt-4o-mini"),
		VisionBaseURL: getEnv("VISION_BASE_URL", "https://api.openai.com/v1"),

		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:    getEnv("STORAGE_BASE_URL", "http://localhost:8080/files"),
		StorageSignSecret: os.Getenv("STORAGE_SIGN_SECRET"),

		PublicBaseURL:   getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		QueueURL:        getEnv("QUEUE_URL", "https://qstash.upstash.io/v2/publish"),
		QueueToken:      os.Getenv("QUEUE_TOKEN"),
		QueueSigningKey: os.Getenv("QUEUE_SIGNING_KEY"),

		BillingAPIKey:          os.Getenv("BILLING_API_KEY"),
		BillingStoreID:         os.Getenv("BILLING_STORE_ID"),
		BillingWebhookSecret:   os.Getenv("BILLING_WEBHOOK_SECRET"),
		BillingRedirectURL:     getEnv("BILLING_REDIRECT_URL", "http://localhost:8080/dashboard?success=true"),
		BillingPortalURL:       getEnv("BILLING_PORTAL_URL", "https://app.lemonsqueezy.com/my-orders"),
		VariantBasicOneTime:    os.Getenv("BILLING_VARIANT_BASIC_ONETIME"),
		VariantProMonthly:      os.Getenv("BILLING_VARIANT_PRO_MONTHLY"),
		VariantProAnnual:       os.Getenv("BILLING_VARIANT_PRO_ANNUAL"),
		VariantUltimateMonthly: os.Getenv("BILLING_VARIANT_ULTIMATE_MONTHLY"),
		VariantUltimateAnnual:  os.Getenv("BILLING_VARIANT_ULTIMATE_ANNUAL"),

		BrevoAPIKey:    os.Getenv("BREVO_API_KEY"),
		BrevoFromEmail: getEnv("BREVO_FROM_EMAIL", "hello@palmtell.com"),
		BrevoFromName:  getEnv("BREVO_FROM_NAME", "Palmtell"),

		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		CORSOrigins:      splitCSV(getEnv("CORS_ORIGINS", "*")),
		DBMaxConns:       int32(getEnvInt("DB_MAX_CONNS", 10)),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		SweeperCutoff:    time.Minute * time.Duration(getEnvInt("SWEEPER_CUTOFF_MINUTES", 30)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.StorageSignSecret == "" {
		// Signed retrieval URLs fall back to the service secret.
		cfg.StorageSignSecret = cfg.JWTSecret
	}

	if cfg.BillingAPIKey != "" {
		missing := missingVariantVars(cfg)
		if len(missing) > 0 {
			return nil, fmt.Errorf("billing enabled but variant map incomplete, missing: %v", missing)
		}
		if cfg.BillingWebhookSecret == "" {
			return nil, fmt.Errorf("BILLING_WEBHOOK_SECRET is required when billing is enabled")
		}
	}

	return cfg, nil
}

func missingVariantVars(cfg *Config) []string {
	var missing []string
	for name, val := range map[string]string{
		"BILLING_VARIANT_BASIC_ONETIME":    cfg.VariantBasicOneTime,
		"BILLING_VARIANT_PRO_MONTHLY":      cfg.VariantProMonthly,
		"BILLING_VARIANT_PRO_ANNUAL":       cfg.VariantProAnnual,
		"BILLING_VARIANT_ULTIMATE_MONTHLY": cfg.VariantUltimateMonthly,
		"BILLING_VARIANT_ULTIMATE_ANNUAL":  cfg.VariantUltimateAnnual,
	} {
		if val == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
