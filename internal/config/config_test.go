package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-checkout/internal/domain/payment"
)

const testSecret = "test-secret-key-that-is-at-least-32-chars"

func setRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("GATEWAY_CHECKOUT_URL", "https://sandbox.example.com/checkout")
	t.Setenv("GATEWAY_MERCHANT_ID", "508029")
	t.Setenv("GATEWAY_SECRET", "4Vj8eK4rloUd272L48hsrarnUA")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, InventoryPostgres, cfg.InventoryBackend)
	assert.Equal(t, 2*time.Hour, cfg.PendingTTL)
	assert.Equal(t, time.Duration(0), cfg.SweepInterval)
	assert.Equal(t, "COP", cfg.Currency)
	assert.Equal(t, payment.SchemeHMACSHA256, cfg.Gateway.Scheme)
	assert.True(t, cfg.Gateway.Enabled)
	assert.Empty(t, cfg.Brokers())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("INVENTORY_BACKEND", "redis")
	t.Setenv("PENDING_ORDER_TTL", "30m")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("GATEWAY_SIGNATURE_SCHEME", "md5")
	t.Setenv("CURRENCY", "usd")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, InventoryRedis, cfg.InventoryBackend)
	assert.Equal(t, 30*time.Minute, cfg.PendingTTL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers())
	assert.Equal(t, payment.SchemeMD5, cfg.Signer().Scheme)
	assert.Equal(t, "USD", cfg.Currency)
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")

	_, err := Load()

	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
}

func TestLoad_ShortJWTSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "short")

	_, err := Load()

	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestLoad_GatewayFieldsRequiredWhenEnabled(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("GATEWAY_CHECKOUT_URL", "")
	t.Setenv("GATEWAY_MERCHANT_ID", "")
	t.Setenv("GATEWAY_SECRET", "")

	_, err := Load()

	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "GATEWAY_MERCHANT_ID")
	assert.Contains(t, err.Error(), "GATEWAY_SECRET")
}

func TestLoad_GatewayDisabled(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("GATEWAY_ENABLED", "false")
	t.Setenv("GATEWAY_CHECKOUT_URL", "")
	t.Setenv("GATEWAY_MERCHANT_ID", "")
	t.Setenv("GATEWAY_SECRET", "")

	cfg, err := Load()

	require.NoError(t, err)
	assert.False(t, cfg.Gateway.Enabled)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad backend", "INVENTORY_BACKEND", "memcached"},
		{"bad duration", "PENDING_ORDER_TTL", "two hours"},
		{"bad bool", "GATEWAY_TEST", "maybe"},
		{"bad scheme", "GATEWAY_SIGNATURE_SCHEME", "sha1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load()

			assert.Error(t, err)
		})
	}
}

func TestLoad_JWTIssuer(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_ISSUER", "https://id.example.com")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "https://id.example.com", cfg.JWTIssuer)
}

func TestConfig_SlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.in}
			assert.Equal(t, tt.want, cfg.SlogLevel())
		})
	}
}
