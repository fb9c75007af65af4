package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)

	assert.Equal(t, 60, cfg.Aggregation.FreshnessMinutes)
	assert.Equal(t, 2, cfg.Aggregation.MinRegions)
	assert.Equal(t, 15, cfg.Aggregation.TopK)
	assert.Equal(t, 5, cfg.Aggregation.NearTipTolerance)
	assert.Equal(t, 3, cfg.Aggregation.NearTipCount)
	assert.Equal(t, 10*time.Second, cfg.Aggregation.QueryTimeout)

	assert.Equal(t, 20*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 30, cfg.Retention.Days)
	assert.Equal(t, "0 3 * * *", cfg.Retention.Schedule)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("DATA_FRESHNESS_MINUTES", "120")
	t.Setenv("MIN_REGIONS_FOR_RANKING", "3")
	t.Setenv("CACHE_TTL", "45s")
	t.Setenv("RETENTION_DAYS", "7")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, 120, cfg.Aggregation.FreshnessMinutes)
	assert.Equal(t, 3, cfg.Aggregation.MinRegions)
	assert.Equal(t, 45*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 7, cfg.Retention.Days)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigInvalidIntFallsBack(t *testing.T) {
	t.Setenv("TOP_FASTEST_COUNT", "fifteen")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.Aggregation.TopK)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero freshness window", "DATA_FRESHNESS_MINUTES", "0"},
		{"negative freshness window", "DATA_FRESHNESS_MINUTES", "-10"},
		{"zero min regions", "MIN_REGIONS_FOR_RANKING", "0"},
		{"zero top k", "TOP_FASTEST_COUNT", "0"},
		{"negative tip tolerance", "NEAR_TIP_BLOCK_TOLERANCE", "-1"},
		{"zero retention", "RETENTION_DAYS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
