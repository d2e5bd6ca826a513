package constants

import "time"

// Retry-ladder and health-probe-cadence defaults, matching
// REQUEST_MAX_RETRIES/REQUEST_BASE_DELAY/HEALTH_CHECK_INTERVAL's documented
// values when an operator leaves them unset.
const (
	DefaultMaxRetries    = 3
	DefaultRetryInterval = 1 * time.Second
	DefaultMaxRetryDelay = 30 * time.Second

	HealthCheckInterval = 1 * time.Minute
)
