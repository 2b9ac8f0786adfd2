package reliability

import (
	"syncplay/pkg/circuitbreaker"
	"syncplay/pkg/config"
	"syncplay/pkg/retry"
)

// PoliciesFromConfig builds the retry and breaker policies used for both
// storage wrappers.
func PoliciesFromConfig(cfg *config.Config) (retry.Config, circuitbreaker.Config) {
	retryConfig := retry.DefaultConfig()
	retryConfig.MaxAttempts = cfg.Reliability.RetryAttempts
	if cfg.Reliability.RetryDelay > 0 {
		retryConfig.InitialDelay = cfg.Reliability.RetryDelay
	}

	cbConfig := circuitbreaker.DefaultConfig()
	cbConfig.FailureThreshold = cfg.Reliability.BreakerFailures
	cbConfig.Timeout = cfg.Reliability.BreakerTimeout

	return retryConfig, cbConfig
}
