package main

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type config struct {
	listenAddr   string
	tilesBaseURL string

	maxInstances        int
	resourceConstrained bool

	snapshotWidth  int
	snapshotHeight int
	pixelRatio     float64
	tileCacheSize  int
	renderRPS      float64

	rateEnabled        bool
	rateRPS            float64
	rateBurst          int
	rateKeyHeader      string
	trustXFF           bool
	retryAfter         time.Duration
	addHeaders         bool
	concurrencyMax     int
	concurrencyTimeout time.Duration

	cacheRedisAddr     string
	cacheRedisPassword string
	cacheRedisDB       int
	cacheRedisPrefix   string
	cacheTTL           time.Duration

	statsEnabled       bool
	statsRedisAddr     string
	statsRedisPassword string
	statsRedisDB       int
	statsPrefix        string
	statsTTL           time.Duration
	statsBucket        string
	statsTrackOwners   bool

	logLevel  string
	logFormat string
}

func readConfig() config {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.tilesBaseURL = strings.TrimRight(os.Getenv("TILES_BASE_URL"), "/")

	cfg.maxInstances = getenvIntDefault("MAX_INSTANCES", 3)
	cfg.resourceConstrained = getenvBoolDefault("RESOURCE_CONSTRAINED", true)

	cfg.snapshotWidth = getenvIntDefault("SNAPSHOT_WIDTH", 1176)
	cfg.snapshotHeight = getenvIntDefault("SNAPSHOT_HEIGHT", 240)
	cfg.pixelRatio = getenvFloatDefault("PIXEL_RATIO", 1)
	cfg.tileCacheSize = getenvIntDefault("TILE_CACHE_SIZE", 256)
	cfg.renderRPS = getenvFloatDefault("RENDER_RPS", 0)

	cfg.rateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	cfg.rateRPS = getenvFloatDefault("RATE_RPS", 2)
	// IMPORTANTE: com RPS abaixo de 1 o burst padrão deixaria passar uma
	// rajada inteira de snapshots antes do primeiro 429.
	if burst, ok := getenvInt("RATE_BURST"); ok {
		cfg.rateBurst = burst
	} else {
		cfg.rateBurst = 10
		if getenvIsSet("RATE_RPS") && cfg.rateRPS > 0 && cfg.rateRPS < 1 {
			cfg.rateBurst = 1
		}
	}
	cfg.rateKeyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.retryAfter = getenvDurationDefault("RETRY_AFTER", 1*time.Second)
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", false)
	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 32)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.cacheRedisAddr = os.Getenv("CACHE_REDIS_ADDR")
	cfg.cacheRedisPassword = os.Getenv("CACHE_REDIS_PASSWORD")
	cfg.cacheRedisDB = getenvIntDefault("CACHE_REDIS_DB", 0)
	cfg.cacheRedisPrefix = getenvDefault("CACHE_REDIS_PREFIX", "mapsurface:snapshot")
	cfg.cacheTTL = getenvDurationDefault("CACHE_TTL", 24*time.Hour)

	cfg.statsEnabled = getenvBoolDefault("STATS_ENABLED", false)
	cfg.statsRedisAddr = os.Getenv("STATS_REDIS_ADDR")
	cfg.statsRedisPassword = os.Getenv("STATS_REDIS_PASSWORD")
	cfg.statsRedisDB = getenvIntDefault("STATS_REDIS_DB", 0)
	cfg.statsPrefix = getenvDefault("STATS_PREFIX", "mapsurface:stats")
	cfg.statsTTL = getenvDurationDefault("STATS_TTL", 24*time.Hour)
	cfg.statsBucket = getenvDefault("STATS_BUCKET", "minute")
	cfg.statsTrackOwners = getenvBoolDefault("STATS_TRACK_OWNERS", false)

	cfg.logLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.logFormat = getenvDefault("LOG_FORMAT", "text")

	return cfg
}

// validate roda depois das flags, que podem sobrescrever o ambiente.
func (cfg config) validate() error {
	if cfg.tilesBaseURL == "" {
		return errors.New("TILES_BASE_URL is required")
	}
	if cfg.maxInstances <= 0 {
		return errors.New("MAX_INSTANCES must be > 0")
	}
	if cfg.snapshotWidth <= 0 || cfg.snapshotHeight <= 0 {
		return errors.New("SNAPSHOT_WIDTH and SNAPSHOT_HEIGHT must be > 0")
	}
	if cfg.pixelRatio <= 0 {
		return errors.New("PIXEL_RATIO must be > 0")
	}
	if cfg.renderRPS < 0 {
		return errors.New("RENDER_RPS must be >= 0")
	}
	if cfg.rateEnabled && cfg.rateRPS <= 0 {
		return errors.New("RATE_RPS must be > 0")
	}
	if cfg.rateEnabled && cfg.rateBurst <= 0 {
		return errors.New("RATE_BURST must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if cfg.statsEnabled && strings.TrimSpace(cfg.statsRedisAddr) == "" {
		return errors.New("STATS_REDIS_ADDR is required when STATS_ENABLED=true")
	}
	switch cfg.statsBucket {
	case "minute", "none":
	default:
		return errors.New("STATS_BUCKET must be minute or none")
	}
	return nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvInt(k string) (int, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func getenvIsSet(k string) bool {
	v, ok := os.LookupEnv(k)
	return ok && v != ""
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
