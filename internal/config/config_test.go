package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrntr/papertrade/internal/trading"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{"FINNHUB_API_KEY": "key"}))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, "key", cfg.APIKey)
	assert.Equal(t, 5*time.Second, cfg.QuoteTimeout)
	assert.Equal(t, "10000.00", cfg.StartingCash.StringFixed(2))
	assert.Equal(t, trading.FirstFill, cfg.CostBasis)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestFromEnv_MissingAPIKey(t *testing.T) {
	_, err := FromEnv(env(nil))
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestFromEnv_LegacyAPIKey(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{"API_KEY": "legacy"}))
	require.NoError(t, err)
	assert.Equal(t, "legacy", cfg.APIKey)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"FINNHUB_API_KEY": "key",
		"STORE":           "memory",
		"QUOTE_TIMEOUT":   "750ms",
		"STARTING_CASH":   "2500.5",
		"COST_BASIS":      "average",
		"LOG_LEVEL":       "debug",
		"CORS_ORIGINS":    "http://localhost:3000,https://trade.example.com",
	}))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, 750*time.Millisecond, cfg.QuoteTimeout)
	assert.Equal(t, "2500.50", cfg.StartingCash.StringFixed(2))
	assert.Equal(t, trading.WeightedAverage, cfg.CostBasis)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Len(t, cfg.CORSOrigins, 2)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"Store", "STORE", "sqlite"},
		{"Timeout", "QUOTE_TIMEOUT", "five"},
		{"Cash", "STARTING_CASH", "lots"},
		{"NegativeCash", "STARTING_CASH", "-1"},
		{"CostBasis", "COST_BASIS", "lifo"},
		{"LogLevel", "LOG_LEVEL", "chatty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(env(map[string]string{"FINNHUB_API_KEY": "key", tt.key: tt.val}))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("FINNHUB_API_KEY", "from-env")
	t.Setenv("ADDR", ":9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, ":9090", cfg.Addr)
}
