package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApp(t *testing.T) {
	config1 := App()
	config2 := App()

	require.NotNil(t, config1)
	assert.Same(t, config1, config2, "App() should return singleton instance")
	assert.NotNil(t, config1.Validator, "Validator should be initialized")
}

func TestGetAppConfig(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, cfg *AppConfig)
	}{
		{
			name:    "default_values",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *AppConfig) {
				assert.Equal(t, "9999", cfg.Port)
				assert.Equal(t, "sqlite", cfg.StorageDriver)
				assert.Equal(t, "sql", cfg.CacheDriver)
				assert.Equal(t, "paypal", cfg.GatewayProvider)
				assert.Equal(t, "sandbox", cfg.PayPalEnvironment)
				assert.False(t, cfg.RequireSignatures)
				assert.Equal(t, time.Hour, cfg.SignatureWindow)
				assert.Equal(t, 24*time.Hour, cfg.OrderContextTTL)
				assert.Equal(t, 24*time.Hour, cfg.SellerProtectionTTL)
				assert.Equal(t, 120, cfg.RateLimitPerMinute)
				assert.Empty(t, cfg.IPWhitelist)
				assert.Empty(t, cfg.CORSOrigins)
				assert.False(t, cfg.EnableLogging)
				assert.Equal(t, "info", cfg.LoggingLevel)
			},
		},
		{
			name: "custom_values",
			envVars: map[string]string{
				"APP_PORT":             "8080",
				"STORAGE_DRIVER":       "POSTGRES",
				"DATABASE_URL":         "postgres://proxy@localhost/proxy",
				"GATEWAY_PROVIDER":     "stripe",
				"REQUIRE_SIGNATURES":   "true",
				"SIGNATURE_WINDOW":     "600",
				"ORDER_CONTEXT_TTL":    "2h",
				"IP_WHITELIST":         "10.0.0.1, 10.0.0.2,,",
				"CORS_ALLOWED_ORIGINS": "https://shop.example",
				"LOGGING_LEVEL":        "DEBUG",
			},
			check: func(t *testing.T, cfg *AppConfig) {
				assert.Equal(t, "8080", cfg.Port)
				assert.Equal(t, "postgres", cfg.StorageDriver)
				assert.Equal(t, "postgres://proxy@localhost/proxy", cfg.DatabaseURL)
				assert.Equal(t, "stripe", cfg.GatewayProvider)
				assert.True(t, cfg.RequireSignatures)
				assert.Equal(t, 10*time.Minute, cfg.SignatureWindow)
				assert.Equal(t, 2*time.Hour, cfg.OrderContextTTL)
				assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.IPWhitelist)
				assert.Equal(t, []string{"https://shop.example"}, cfg.CORSOrigins)
				assert.Equal(t, "debug", cfg.LoggingLevel)
			},
		},
		{
			name: "invalid_values_fall_back",
			envVars: map[string]string{
				"REQUIRE_SIGNATURES":    "maybe",
				"SIGNATURE_WINDOW":      "soon",
				"RATE_LIMIT_PER_MINUTE": "many",
			},
			check: func(t *testing.T, cfg *AppConfig) {
				assert.False(t, cfg.RequireSignatures)
				assert.Equal(t, time.Hour, cfg.SignatureWindow)
				assert.Equal(t, 120, cfg.RateLimitPerMinute)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetForTest()
			t.Cleanup(resetForTest)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg := GetAppConfig()
			require.NotNil(t, cfg)
			tt.check(t, cfg)
			assert.Same(t, cfg, GetAppConfig(), "GetAppConfig() should return singleton instance")
		})
	}
}

func TestAppConfig_GatewayConfig(t *testing.T) {
	cfg := &AppConfig{
		GatewayProvider:    "paypal",
		PayPalClientID:     "client",
		PayPalClientSecret: "secret",
		PayPalEnvironment:  "production",
		PayPalWebhookID:    "WH-1",
		StripeSecretKey:    "sk_test",
	}

	paypal := cfg.GatewayConfig()
	assert.Equal(t, "client", paypal["clientId"])
	assert.Equal(t, "secret", paypal["clientSecret"])
	assert.Equal(t, "production", paypal["environment"])
	assert.Equal(t, "WH-1", paypal["webhookId"])

	cfg.GatewayProvider = "stripe"
	stripe := cfg.GatewayConfig()
	assert.Equal(t, "sk_test", stripe["secretKey"])
	assert.NotContains(t, stripe, "clientSecret")
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_STRING_VAR", "value")
	assert.Equal(t, "value", GetEnv("TEST_STRING_VAR", "default"))
	assert.Equal(t, "default", GetEnv("TEST_UNSET_VAR_XYZ", "default"))
}

func TestGetBoolEnv(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue bool
		expected     bool
	}{
		{"true_value", "true", false, true},
		{"one_value", "1", false, true},
		{"false_value", "false", true, false},
		{"invalid_uses_default", "yes please", true, true},
		{"empty_uses_default", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL_VAR", tt.value)
			assert.Equal(t, tt.expected, GetBoolEnv("TEST_BOOL_VAR", tt.defaultValue))
		})
	}
}

func TestGetIntEnv(t *testing.T) {
	t.Setenv("TEST_INT_VAR", "42")
	assert.Equal(t, 42, GetIntEnv("TEST_INT_VAR", 1))

	t.Setenv("TEST_INT_VAR", "abc")
	assert.Equal(t, 1, GetIntEnv("TEST_INT_VAR", 1))
}

func TestGetDurationEnv(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected time.Duration
	}{
		{"seconds", "3600", time.Hour},
		{"duration", "90m", 90 * time.Minute},
		{"invalid", "later", 5 * time.Second},
		{"empty", "", 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION_VAR", tt.value)
			assert.Equal(t, tt.expected, GetDurationEnv("TEST_DURATION_VAR", 5*time.Second))
		})
	}
}

// resetForTest drops the cached configuration
func resetForTest() {
	mu.Lock()
	appConfigInstance = nil
	mu.Unlock()
}
