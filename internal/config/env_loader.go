package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// mergeEnvVars overlays environment variables onto cfg, env winning over
// whatever the file (or defaults) set. Matches the names EXTERNAL
// INTERFACES documents as the operator-facing knobs.
func (cm *ConfigManager) mergeEnvVars() {
	cfg := cm.config
	if cfg == nil {
		return
	}

	if v := getenv("GATEWAY_LOG_FILE", ""); v != "" {
		cfg.LogFile = v
	}
	if v := getenv("KIRO_LOG_LEVEL", ""); v != "" {
		cfg.LogLevel = v
	}
	setToggleFromEnv("GATEWAY_DEBUG", func(b bool) { cfg.Debug = b })
	if v := getenv("GATEWAY_PROXY_URL", ""); v != "" {
		cfg.ProxyURL = v
	}

	for _, protocol := range []string{"gemini", "openai", "claude", "qwen"} {
		env := "USE_SYSTEM_PROXY_" + strings.ToUpper(protocol)
		if v := os.Getenv(env); v != "" {
			if cfg.UseSystemProxy == nil {
				cfg.UseSystemProxy = make(map[string]bool)
			}
			cfg.UseSystemProxy[protocol] = parseBool(v, cfg.UseSystemProxy[protocol])
		}
	}

	if v := getenv("GATEWAY_CREDENTIAL_DIR", ""); v != "" {
		cfg.CredentialDir = v
	}
	if v := getenv("GATEWAY_POOL_PERSIST_PATH", ""); v != "" {
		cfg.PoolPersistPath = v
	}

	if v := getenv("REDIS_ADDR", ""); v != "" {
		cfg.RedisAddr = v
	}
	if v := getenv("REDIS_PASSWORD", ""); v != "" {
		cfg.RedisPassword = v
	}
	setIntFromEnv("REDIS_DB", func(n int) { cfg.RedisDB = n })

	setIntFromEnv("maxErrorCount", func(n int) { cfg.MaxErrorCount = n })
	setMillisFromEnv("HEALTH_CHECK_INTERVAL", func(d time.Duration) { cfg.HealthCheckInterval = d })
	setMillisFromEnv("saveDebounceTime", func(d time.Duration) { cfg.SaveDebounceTime = d })

	setToggleFromEnv("stickySession.enabled", func(b bool) { cfg.StickySession.Enabled = b })
	setMillisFromEnv("stickySession.ttlMs", func(d time.Duration) { cfg.StickySession.TTL = d })
	setMillisFromEnv("stickySession.cleanupIntervalMs", func(d time.Duration) { cfg.StickySession.CleanupInterval = d })
	setIntFromEnv("stickySession.maxSessions", func(n int) { cfg.StickySession.MaxSessions = n })

	setIntFromEnv("REQUEST_MAX_RETRIES", func(n int) { cfg.RequestMaxRetries = n })
	setMillisFromEnv("REQUEST_BASE_DELAY", func(d time.Duration) { cfg.RequestBaseDelay = d })
	setMinutesFromEnv("CRON_NEAR_MINUTES", func(d time.Duration) { cfg.CronNearMinutes = d })

	setToggleFromEnv("KIRO_OPTIMISTIC_CACHE", func(b bool) { cfg.KiroOptimisticCache = b })
	setToggleFromEnv("KIRO_CACHE_DEBUG", func(b bool) { cfg.KiroCacheDebug = b })
}

func parseBool(v string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func setMillisFromEnv(key string, setter func(time.Duration)) {
	if v := getenv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			setter(time.Duration(n) * time.Millisecond)
		}
	}
}

func setMinutesFromEnv(key string, setter func(time.Duration)) {
	if v := getenv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			setter(time.Duration(n) * time.Minute)
		}
	}
}
