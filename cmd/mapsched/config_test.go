package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfig_Defaults(t *testing.T) {
	t.Setenv("TILES_BASE_URL", "http://board.local/")

	cfg := readConfig()
	require.NoError(t, cfg.validate())

	assert.Equal(t, ":8080", cfg.listenAddr)
	assert.Equal(t, "http://board.local", cfg.tilesBaseURL)
	assert.Equal(t, 3, cfg.maxInstances)
	assert.True(t, cfg.resourceConstrained)
	assert.Equal(t, 1176, cfg.snapshotWidth)
	assert.Equal(t, 240, cfg.snapshotHeight)
	assert.Equal(t, 10, cfg.rateBurst)
	assert.Equal(t, time.Second, cfg.retryAfter)
	assert.Equal(t, "mapsurface:snapshot", cfg.cacheRedisPrefix)
	assert.Equal(t, "minute", cfg.statsBucket)
	assert.Equal(t, "info", cfg.logLevel)
}

func TestReadConfig_LowRateUsesBurstOfOne(t *testing.T) {
	t.Setenv("TILES_BASE_URL", "http://board.local")
	t.Setenv("RATE_RPS", "0.02")

	assert.Equal(t, 1, readConfig().rateBurst)

	t.Setenv("RATE_BURST", "4")
	assert.Equal(t, 4, readConfig().rateBurst)
}

func TestReadConfig_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("MAX_INSTANCES", "many")
	t.Setenv("RESOURCE_CONSTRAINED", "perhaps")
	t.Setenv("STATS_TTL", "forever")

	cfg := readConfig()
	assert.Equal(t, 3, cfg.maxInstances)
	assert.True(t, cfg.resourceConstrained)
	assert.Equal(t, 24*time.Hour, cfg.statsTTL)
}

func TestConfigValidate(t *testing.T) {
	t.Setenv("TILES_BASE_URL", "http://board.local")
	valid := readConfig

	tests := []struct {
		name   string
		mutate func(*config)
		want   string
	}{
		{"missing tiles url", func(c *config) { c.tilesBaseURL = "" }, "TILES_BASE_URL"},
		{"zero instances", func(c *config) { c.maxInstances = 0 }, "MAX_INSTANCES"},
		{"bad size", func(c *config) { c.snapshotHeight = 0 }, "SNAPSHOT_WIDTH"},
		{"bad pixel ratio", func(c *config) { c.pixelRatio = -1 }, "PIXEL_RATIO"},
		{"zero rate", func(c *config) { c.rateRPS = 0 }, "RATE_RPS"},
		{"zero burst", func(c *config) { c.rateBurst = 0 }, "RATE_BURST"},
		{"negative concurrency", func(c *config) { c.concurrencyMax = -1 }, "CONCURRENCY_MAX"},
		{"stats without redis", func(c *config) { c.statsEnabled = true }, "STATS_REDIS_ADDR"},
		{"unknown bucket", func(c *config) { c.statsBucket = "hour" }, "STATS_BUCKET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("rate disabled ignores rate settings", func(t *testing.T) {
		cfg := valid()
		cfg.rateEnabled = false
		cfg.rateRPS = 0
		assert.NoError(t, cfg.validate())
	})
}
