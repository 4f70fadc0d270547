package api

import (
	"os"
	"strconv"
	"time"

	"github.com/nadim/fieldsync/internal/geo"
)

// Config holds the server configuration, loaded from environment variables.
type Config struct {
	ListenAddr      string
	DBPath          string
	ShutdownTimeout time.Duration
	LogFormat       string // "json" (default) or "text"
	LogLevel        string // "debug", "info" (default), "warn", "error"

	// RequireDeviceAuth enforces Bearer device keys on /v1/sync/*. Off by
	// default so a single-tenant deployment works without provisioning.
	RequireDeviceAuth bool
	// AdminToken gates supervisor and zone-management endpoints via the
	// X-Admin-Token header. Empty leaves them open.
	AdminToken string

	RateLimitSync  int // /v1/sync/* per device key per minute (default: 60)
	RateLimitOther int // all other per key per minute (default: 300)

	// MaxBatchItems caps the item count of one sync upload.
	MaxBatchItems int

	// Geofence classification bands.
	GeoToleranceDegrees float64
	GeoWarningMeters    float64
	GeoRejectMeters     float64

	// SchedulerInterval is how often recurring task templates are checked.
	SchedulerInterval time.Duration
}

// Thresholds returns the geofence thresholds derived from the config.
func (c Config) Thresholds() geo.Thresholds {
	return geo.Thresholds{
		ToleranceDegrees: c.GeoToleranceDegrees,
		WarningMeters:    c.GeoWarningMeters,
		HardRejectMeters: c.GeoRejectMeters,
	}
}

// LoadConfig reads configuration from environment variables with sensible defaults.
func LoadConfig() Config {
	cfg := Config{
		ListenAddr:      ":8080",
		DBPath:          "./data/fieldsync.db",
		ShutdownTimeout: 30 * time.Second,
		LogFormat:       "json",
		LogLevel:        "info",

		RateLimitSync:  60,
		RateLimitOther: 300,
		MaxBatchItems:  500,

		GeoToleranceDegrees: 0.0003,
		GeoWarningMeters:    100,
		GeoRejectMeters:     500,

		SchedulerInterval: time.Minute,
	}

	if v := os.Getenv("FIELDSYNC_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FIELDSYNC_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FIELDSYNC_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("FIELDSYNC_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("FIELDSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if v := os.Getenv("FIELDSYNC_REQUIRE_DEVICE_AUTH"); v == "true" || v == "1" {
		cfg.RequireDeviceAuth = true
	}
	cfg.AdminToken = os.Getenv("FIELDSYNC_ADMIN_TOKEN")

	if v := os.Getenv("FIELDSYNC_RATE_LIMIT_SYNC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitSync = n
		}
	}
	if v := os.Getenv("FIELDSYNC_RATE_LIMIT_OTHER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitOther = n
		}
	}
	if v := os.Getenv("FIELDSYNC_MAX_BATCH_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxBatchItems = n
		}
	}

	if v := os.Getenv("FIELDSYNC_GEO_TOLERANCE_DEG"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.GeoToleranceDegrees = f
		}
	}
	if v := os.Getenv("FIELDSYNC_GEO_WARNING_M"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.GeoWarningMeters = f
		}
	}
	if v := os.Getenv("FIELDSYNC_GEO_REJECT_M"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.GeoRejectMeters = f
		}
	}

	if v := os.Getenv("FIELDSYNC_SCHEDULER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SchedulerInterval = d
		}
	}

	return cfg
}
