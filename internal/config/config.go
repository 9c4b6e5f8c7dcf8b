// Package config loads process configuration from the environment, with the
// defaults spec'd for streamgate.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// LoadDotEnv best-effort loads .env/.env.local; a missing file is not an error.
func LoadDotEnv(logger *logrus.Logger) {
	files := []string{".env", ".env.local"}
	var loaded []string
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Overload(f); err != nil {
			if logger != nil {
				logger.WithError(err).Warnf("failed to load %s", f)
			}
			continue
		}
		loaded = append(loaded, f)
	}
	if logger != nil {
		if len(loaded) == 0 {
			logger.Debug("no local env files loaded; relying on process environment")
		} else {
			logger.Debugf("loaded env files: %s", strings.Join(loaded, ", "))
		}
	}
}

// GetEnv returns the named environment variable or a default value.
func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetEnvInt returns the named environment variable parsed as an int, or a default.
func GetEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

// GetEnvDurationMS returns the named environment variable, interpreted as
// milliseconds, as a time.Duration; falls back to defMS milliseconds.
func GetEnvDurationMS(key string, defMS int) time.Duration {
	return time.Duration(GetEnvInt(key, defMS)) * time.Millisecond
}

// GetEnvFloat returns the named environment variable parsed as a float64, or a default.
func GetEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

// GetEnvBool returns the named environment variable parsed as a bool, or a default.
func GetEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

// Config holds every tunable of the Stream Data Plane, sourced from the
// STREAM_* environment variables described in spec.md §6.
type Config struct {
	Port        string
	GinMode     string
	NodeID      string
	StorageDir  string
	TokenSecret []byte

	ProbeInterval  time.Duration
	SessionIdleTTL time.Duration
	SweepInterval  time.Duration

	ReadRetries     int
	ReadRetryBaseMS time.Duration
	ReadRetryMaxMS  time.Duration

	ReadRetryRPS   float64
	ReadRetryBurst int
}

// Load reads the full Config from the environment.
func Load() Config {
	nodeID := GetEnv("NODE_ID", "")
	if nodeID == "" {
		nodeID, _ = os.Hostname()
	}

	return Config{
		Port:        GetEnv("PORT", "18080"),
		GinMode:     GetEnv("GIN_MODE", "debug"),
		NodeID:      nodeID,
		StorageDir:  GetEnv("STREAM_STORAGE_DIR", "./data/streams"),
		TokenSecret: []byte(GetEnv("STREAM_TOKEN_SECRET", "dev-insecure-stream-secret")),

		ProbeInterval:  GetEnvDurationMS("STREAM_PROBE_INTERVAL_MS", 5000),
		SessionIdleTTL: GetEnvDurationMS("STREAM_SESSION_IDLE_TTL_MS", 60000),
		SweepInterval:  GetEnvDurationMS("STREAM_SESSION_SWEEP_MS", 5000),

		ReadRetries:     GetEnvInt("STREAM_PLAYBACK_READ_RETRIES", 0),
		ReadRetryBaseMS: GetEnvDurationMS("STREAM_PLAYBACK_READ_RETRY_BASE_MS", 25),
		ReadRetryMaxMS:  GetEnvDurationMS("STREAM_PLAYBACK_READ_RETRY_MAX_MS", 250),

		ReadRetryRPS:   GetEnvFloat("STREAM_PLAYBACK_READ_RETRY_RPS", 50),
		ReadRetryBurst: GetEnvInt("STREAM_PLAYBACK_READ_RETRY_BURST", 20),
	}
}
