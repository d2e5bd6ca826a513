package config

import (
	"time"

	"aigateway/internal/constants"
	"aigateway/internal/credential"
)

// DefaultGatewayConfig returns the configuration the gateway runs with when
// no file is found and no environment variable overrides a given knob.
func DefaultGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		LogLevel: "info",

		DialTimeoutSec:           int(constants.DefaultDialTimeout.Seconds()),
		TLSHandshakeTimeoutSec:   int(constants.DefaultTLSHandshakeTimeout.Seconds()),
		ResponseHeaderTimeoutSec: int(constants.DefaultResponseHeaderTimeout.Seconds()),
		ExpectContinueTimeoutSec: int(constants.DefaultExpectContinueTimeout.Seconds()),

		CredentialDir:   "~/.aigateway/auths",
		PoolPersistPath: "configs/provider_pools.json",

		MaxErrorCount:       credential.DefaultMaxErrorCount,
		HealthCheckInterval: constants.HealthCheckInterval,
		SaveDebounceTime:    time.Second,

		StickySession: StickySessionConfig{
			Enabled:         true,
			TTL:             30 * time.Minute,
			CleanupInterval: time.Minute,
			MaxSessions:     10000,
		},

		RequestMaxRetries: constants.DefaultMaxRetries,
		RequestBaseDelay:  constants.DefaultRetryInterval,
		RequestMaxDelay:   constants.DefaultMaxRetryDelay,

		CronNearMinutes:     10 * time.Minute,
		KiroOptimisticCache: true,
	}
}

// applyGatewayConfigUpdate sets the field named by key on cfg from value,
// matching the subset of knobs an operator can change at runtime through
// UpdateConfig. Type mismatches are ignored rather than erroring.
func applyGatewayConfigUpdate(cfg *GatewayConfig, key string, value interface{}) {
	switch key {
	case "debug":
		if b, ok := value.(bool); ok {
			cfg.Debug = b
		}
	case "log_level":
		if s, ok := value.(string); ok {
			cfg.LogLevel = s
		}
	case "proxy_url":
		if s, ok := value.(string); ok {
			cfg.ProxyURL = s
		}
	case "max_error_count":
		if n, ok := toInt(value); ok {
			cfg.MaxErrorCount = n
		}
	case "health_check_interval_ms":
		if n, ok := toInt(value); ok {
			cfg.HealthCheckInterval = time.Duration(n) * time.Millisecond
		}
	case "save_debounce_time_ms":
		if n, ok := toInt(value); ok {
			cfg.SaveDebounceTime = time.Duration(n) * time.Millisecond
		}
	case "sticky_session.enabled":
		if b, ok := value.(bool); ok {
			cfg.StickySession.Enabled = b
		}
	case "sticky_session.max_sessions":
		if n, ok := toInt(value); ok {
			cfg.StickySession.MaxSessions = n
		}
	case "request_max_retries":
		if n, ok := toInt(value); ok {
			cfg.RequestMaxRetries = n
		}
	case "kiro_optimistic_cache":
		if b, ok := value.(bool); ok {
			cfg.KiroOptimisticCache = b
		}
	case "kiro_cache_debug":
		if b, ok := value.(bool); ok {
			cfg.KiroCacheDebug = b
		}
	}
}

func toInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
