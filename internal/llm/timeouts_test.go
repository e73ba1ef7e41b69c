package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadTimeoutConfig_DefaultsWithoutEnv(t *testing.T) {
	cfg := LoadTimeoutConfig()
	assert.Equal(t, 120*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5*time.Minute, cfg.OperationTimeout)
	assert.Equal(t, 3*time.Minute, cfg.StreamActivityTimeout)
}

func TestLoadTimeoutConfig_HonorsValidEnvOverride(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "30")
	cfg := LoadTimeoutConfig()
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestLoadTimeoutConfig_FallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "not-a-number")
	cfg := LoadTimeoutConfig()
	assert.Equal(t, 120*time.Second, cfg.RequestTimeout)
}

func TestLoadTimeoutConfig_FallsBackOnOutOfRangeValue(t *testing.T) {
	t.Setenv("MAX_OPERATION_TIMEOUT", "99999")
	cfg := LoadTimeoutConfig()
	assert.Equal(t, 5*time.Minute, cfg.OperationTimeout)
}

func TestLoadTimeoutConfig_StreamActivityMinimum(t *testing.T) {
	t.Setenv("ENGINE_ACTIVITY_TIMEOUT", "1")
	cfg := LoadTimeoutConfig()
	assert.Equal(t, 3*time.Minute, cfg.StreamActivityTimeout)
}
