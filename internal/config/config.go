package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the call relay service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	RelayBufferSize   int
	RelayReliableWait time.Duration

	ExecutorURL         string
	ExecutorTimeout     time.Duration
	DispatchMaxInFlight int

	AnalysisMinInterval   time.Duration
	AnalysisMaxInterval   time.Duration
	AnalysisWordThreshold int

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "farah"),
		AllowAnyOrigin:           false,
		RelayBufferSize:          64,
		RelayReliableWait:        2 * time.Second,
		ExecutorURL:              stringsTrimSpace("COMMAND_EXECUTOR_URL"),
		ExecutorTimeout:          10 * time.Second,
		DispatchMaxInFlight:      8,
		AnalysisMinInterval:      15 * time.Second,
		AnalysisMaxInterval:      60 * time.Second,
		AnalysisWordThreshold:    20,
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.RelayBufferSize, err = intFromEnv("RELAY_BUFFER_SIZE", cfg.RelayBufferSize)
	if err != nil {
		return Config{}, err
	}
	cfg.RelayReliableWait, err = durationFromEnv("RELAY_RELIABLE_WAIT", cfg.RelayReliableWait)
	if err != nil {
		return Config{}, err
	}
	cfg.ExecutorTimeout, err = durationFromEnv("COMMAND_EXECUTOR_TIMEOUT", cfg.ExecutorTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.DispatchMaxInFlight, err = intFromEnv("DISPATCH_MAX_IN_FLIGHT", cfg.DispatchMaxInFlight)
	if err != nil {
		return Config{}, err
	}
	cfg.AnalysisMinInterval, err = durationFromEnv("ANALYSIS_MIN_INTERVAL", cfg.AnalysisMinInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.AnalysisMaxInterval, err = durationFromEnv("ANALYSIS_MAX_INTERVAL", cfg.AnalysisMaxInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.AnalysisWordThreshold, err = intFromEnv("ANALYSIS_WORD_THRESHOLD", cfg.AnalysisWordThreshold)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.RelayBufferSize <= 0 {
		return Config{}, fmt.Errorf("RELAY_BUFFER_SIZE must be positive")
	}
	if cfg.RelayReliableWait <= 0 {
		return Config{}, fmt.Errorf("RELAY_RELIABLE_WAIT must be positive")
	}
	if cfg.ExecutorTimeout <= 0 {
		return Config{}, fmt.Errorf("COMMAND_EXECUTOR_TIMEOUT must be positive")
	}
	if cfg.DispatchMaxInFlight <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_MAX_IN_FLIGHT must be positive")
	}
	if cfg.AnalysisMinInterval > cfg.AnalysisMaxInterval {
		return Config{}, fmt.Errorf("ANALYSIS_MIN_INTERVAL must not exceed ANALYSIS_MAX_INTERVAL")
	}
	if cfg.AnalysisWordThreshold <= 0 {
		return Config{}, fmt.Errorf("ANALYSIS_WORD_THRESHOLD must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: invalid bool %q", key, v)
	}
}
