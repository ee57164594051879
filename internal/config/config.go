package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/congo-pay/payments-engine/internal/account"
	"github.com/congo-pay/payments-engine/internal/csvio"
)

const (
	defaultAppName         = "PaymentsEngine"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
	disputePolicyEnvVar    = "DISPUTE_POLICY"
	rowPolicyEnvVar        = "ROW_ERROR_POLICY"
	outputScaleEnvVar      = "OUTPUT_SCALE"
	maxOutputScale         = 28
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	DisputePolicy  account.Policy
	RowErrorPolicy csvio.Policy
	OutputScale    int32
	APIKeyHash     string
}

// Load reads configuration values from the environment and populates a Config
// instance. Postgres and Redis are optional; the HTTP service enforces them
// outside development environments.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		OutputScale:    csvio.DefaultScale,
		APIKeyHash:     os.Getenv("API_KEY_HASH"),
	}

	var err error
	if cfg.ShutdownPeriod, err = duration(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = duration(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}

	if cfg.DisputePolicy, err = account.ParsePolicy(strings.ToLower(os.Getenv(disputePolicyEnvVar))); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", disputePolicyEnvVar, err)
	}
	if cfg.RowErrorPolicy, err = csvio.ParsePolicy(strings.ToLower(os.Getenv(rowPolicyEnvVar))); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", rowPolicyEnvVar, err)
	}

	if v := os.Getenv(outputScaleEnvVar); v != "" {
		scale, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", outputScaleEnvVar, err)
		}
		if scale < 0 || scale > maxOutputScale {
			return Config{}, fmt.Errorf("invalid %s: must be between 0 and %d", outputScaleEnvVar, maxOutputScale)
		}
		cfg.OutputScale = int32(scale)
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func duration(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
