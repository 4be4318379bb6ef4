package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/paypal-proxy/infra/validate"
)

type Config struct {
	Validator *validator.Validate
}

// AppConfig represents the application configuration
type AppConfig struct {
	Port        string
	Environment string

	StorageDriver   string
	SQLitePath      string
	DatabaseURL     string
	CacheDriver     string
	CacheMaxEntries int

	GatewayProvider      string
	PayPalClientID       string
	PayPalClientSecret   string
	PayPalEnvironment    string
	PayPalWebhookID      string
	StripeSecretKey      string
	StripePublishableKey string
	StripeWebhookSecret  string

	RequireSignatures   bool
	SignatureWindow     time.Duration
	OrderContextTTL     time.Duration
	SellerProtectionTTL time.Duration

	RateLimitPerMinute int
	IPWhitelist        []string
	CORSOrigins        []string
	AdminAPIKey        string

	OpenSearchURL  string
	OpenSearchUser string
	OpenSearchPass string
	EnableLogging  bool
	LoggingLevel   string
}

var (
	instance          *Config
	appConfigInstance *AppConfig
	mu                sync.Mutex
)

func App() *Config {
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		instance = &Config{
			Validator: validate.CustomValidate(),
		}
	}
	return instance
}

// GetAppConfig returns the application configuration
func GetAppConfig() *AppConfig {
	mu.Lock()
	defer mu.Unlock()
	if appConfigInstance == nil {
		appConfigInstance = &AppConfig{
			Port:        GetEnv("APP_PORT", "9999"),
			Environment: GetEnv("APP_ENV", "development"),

			StorageDriver:   strings.ToLower(GetEnv("STORAGE_DRIVER", "sqlite")),
			SQLitePath:      GetEnv("SQLITE_PATH", "./data/paypal-proxy.db"),
			DatabaseURL:     GetEnv("DATABASE_URL", ""),
			CacheDriver:     strings.ToLower(GetEnv("CACHE_DRIVER", "sql")),
			CacheMaxEntries: GetIntEnv("CACHE_MAX_ENTRIES", 10000),

			GatewayProvider:      strings.ToLower(GetEnv("GATEWAY_PROVIDER", "paypal")),
			PayPalClientID:       GetEnv("PAYPAL_CLIENT_ID", ""),
			PayPalClientSecret:   GetEnv("PAYPAL_CLIENT_SECRET", ""),
			PayPalEnvironment:    GetEnv("PAYPAL_ENVIRONMENT", "sandbox"),
			PayPalWebhookID:      GetEnv("PAYPAL_WEBHOOK_ID", ""),
			StripeSecretKey:      GetEnv("STRIPE_SECRET_KEY", ""),
			StripePublishableKey: GetEnv("STRIPE_PUBLISHABLE_KEY", ""),
			StripeWebhookSecret:  GetEnv("STRIPE_WEBHOOK_SECRET", ""),

			RequireSignatures:   GetBoolEnv("REQUIRE_SIGNATURES", false),
			SignatureWindow:     GetDurationEnv("SIGNATURE_WINDOW", time.Hour),
			OrderContextTTL:     GetDurationEnv("ORDER_CONTEXT_TTL", 24*time.Hour),
			SellerProtectionTTL: GetDurationEnv("SELLER_PROTECTION_TTL", 24*time.Hour),

			RateLimitPerMinute: GetIntEnv("RATE_LIMIT_PER_MINUTE", 120),
			IPWhitelist:        GetListEnv("IP_WHITELIST"),
			CORSOrigins:        GetListEnv("CORS_ALLOWED_ORIGINS"),
			AdminAPIKey:        GetEnv("ADMIN_API_KEY", ""),

			OpenSearchURL:  GetEnv("OPENSEARCH_URL", "http://localhost:9200"),
			OpenSearchUser: GetEnv("OPENSEARCH_USER", ""),
			OpenSearchPass: GetEnv("OPENSEARCH_PASSWORD", ""),
			EnableLogging:  GetBoolEnv("ENABLE_OPENSEARCH_LOGGING", false),
			LoggingLevel:   strings.ToLower(GetEnv("LOGGING_LEVEL", "info")),
		}
	}
	return appConfigInstance
}

// GatewayConfig returns the configuration map the selected gateway factory expects
func (c *AppConfig) GatewayConfig() map[string]string {
	switch c.GatewayProvider {
	case "stripe":
		return map[string]string{
			"secretKey":      c.StripeSecretKey,
			"publishableKey": c.StripePublishableKey,
			"webhookSecret":  c.StripeWebhookSecret,
			"environment":    c.PayPalEnvironment,
		}
	default:
		return map[string]string{
			"clientId":     c.PayPalClientID,
			"clientSecret": c.PayPalClientSecret,
			"environment":  c.PayPalEnvironment,
			"webhookId":    c.PayPalWebhookID,
		}
	}
}

// IsProduction reports whether the service runs with production settings
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetDurationEnv accepts Go durations ("90m") or plain seconds ("3600")
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	return defaultValue
}

// GetListEnv splits a comma separated variable, dropping empty entries
func GetListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

