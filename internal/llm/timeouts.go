package llm

import (
	"os"
	"strconv"
	"time"
)

// TimeoutConfig holds the three provider-facing timeouts configurable
// through environment variables. Every value is validated into its
// documented range; an absent or invalid environment value silently
// falls back to the default rather than failing startup.
type TimeoutConfig struct {
	// RequestTimeout bounds a single provider call (1s-1h, default 120s).
	RequestTimeout time.Duration
	// OperationTimeout bounds the whole retry-and-fallback operation
	// (1s-2h, default 5min).
	OperationTimeout time.Duration
	// StreamActivityTimeout cancels a streaming response that stalls
	// for longer than this between chunks (5s-10min, default 3min).
	StreamActivityTimeout time.Duration
}

// DefaultTimeoutConfig returns the documented defaults.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		RequestTimeout:        120 * time.Second,
		OperationTimeout:      5 * time.Minute,
		StreamActivityTimeout: 3 * time.Minute,
	}
}

// LoadTimeoutConfig reads REQUEST_TIMEOUT, MAX_OPERATION_TIMEOUT, and
// ENGINE_ACTIVITY_TIMEOUT (integer seconds) from the environment,
// validating each into its documented range and otherwise keeping the
// default.
func LoadTimeoutConfig() TimeoutConfig {
	cfg := DefaultTimeoutConfig()
	cfg.RequestTimeout = envSecondsInRange("REQUEST_TIMEOUT", cfg.RequestTimeout, time.Second, time.Hour)
	cfg.OperationTimeout = envSecondsInRange("MAX_OPERATION_TIMEOUT", cfg.OperationTimeout, time.Second, 2*time.Hour)
	cfg.StreamActivityTimeout = envSecondsInRange("ENGINE_ACTIVITY_TIMEOUT", cfg.StreamActivityTimeout, 5*time.Second, 10*time.Minute)
	return cfg
}

func envSecondsInRange(name string, fallback, min, max time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	d := time.Duration(seconds) * time.Second
	if d < min || d > max {
		return fallback
	}
	return d
}
