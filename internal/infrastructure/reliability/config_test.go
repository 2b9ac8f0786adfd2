package reliability

import (
	"testing"
	"time"

	"syncplay/pkg/config"

	"github.com/stretchr/testify/assert"
)

func TestPoliciesFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Reliability.RetryAttempts = 4
	cfg.Reliability.RetryDelay = 20 * time.Millisecond
	cfg.Reliability.BreakerFailures = 7
	cfg.Reliability.BreakerTimeout = time.Minute

	retryConfig, cbConfig := PoliciesFromConfig(cfg)
	assert.Equal(t, 4, retryConfig.MaxAttempts)
	assert.Equal(t, 20*time.Millisecond, retryConfig.InitialDelay)
	assert.Equal(t, 7, cbConfig.FailureThreshold)
	assert.Equal(t, time.Minute, cbConfig.Timeout)
}
