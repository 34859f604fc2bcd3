package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	LogLevel        slog.Level
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// The two display cadences: fast for markers/popups/cursor, slow for
	// meridian label refresh.
	TickInterval            time.Duration
	MeridianRefreshInterval time.Duration

	FlyToZoom          float64
	FlyToDuration      time.Duration
	ResetFlyToDuration time.Duration

	TimeAuthorityURL     string
	TimeAuthorityTimeout time.Duration

	CitiesPath string

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CameraTTL     time.Duration

	RateLimitPerWindow int
	RateLimitWindow    time.Duration
	RateLimitWhitelist []string
}

// minMeridianRefresh is the floor for the slow cadence; meridian labels
// are deliberately not refreshed at marker speed.
const minMeridianRefresh = 60 * time.Second

func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:        getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		TickInterval:            getDurationEnv("TICK_INTERVAL", time.Second),
		MeridianRefreshInterval: getDurationEnv("MERIDIAN_REFRESH_INTERVAL", time.Minute),

		FlyToZoom:          getFloatEnv("FLYTO_ZOOM", 5),
		FlyToDuration:      getDurationEnv("FLYTO_DURATION", 1500*time.Millisecond),
		ResetFlyToDuration: getDurationEnv("RESET_FLYTO_DURATION", 2*time.Second),

		TimeAuthorityURL:     getEnv("TIME_AUTHORITY_URL", ""),
		TimeAuthorityTimeout: getDurationEnv("TIME_AUTHORITY_TIMEOUT", 3*time.Second),

		CitiesPath: getEnv("CITIES_PATH", ""),

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		CameraTTL:     getDurationEnv("CAMERA_TTL", 30*24*time.Hour),

		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", 120),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitWhitelist: getCSVEnv("RATE_LIMIT_WHITELIST"),
	}

	if cfg.MeridianRefreshInterval < minMeridianRefresh {
		cfg.MeridianRefreshInterval = minMeridianRefresh
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}
