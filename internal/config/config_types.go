package config

import "time"

// StickySessionConfig holds the sticky-session knobs. TTL, MaxSessions and
// CleanupInterval are passed to the Provider Pool Manager's StickyTable by
// CredentialOptions. Enabled is loaded, overridable from the environment and
// logged on reload, but it is not passed on: the pool pins a session whenever
// a selection carries a session id.
type StickySessionConfig struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	TTL             time.Duration `yaml:"ttl_ms" json:"ttl_ms"`
	CleanupInterval time.Duration `yaml:"cleanup_interval_ms" json:"cleanup_interval_ms"`
	MaxSessions     int           `yaml:"max_sessions" json:"max_sessions"`
}

// FallbackRoute is one modelFallbackMapping entry: a model name that should
// be transparently substituted, cross-protocol, for another provider/model.
type FallbackRoute struct {
	TargetProviderType string `yaml:"target_provider_type" json:"target_provider_type"`
	TargetModel        string `yaml:"target_model" json:"target_model"`
}

// GatewayConfig is the single typed struct every ambient and domain knob the
// gateway reads lives in, loaded from an optional YAML/JSON file on disk
// (hot-reloaded via fsnotify) and then overlaid with environment overrides.
type GatewayConfig struct {
	// Ambient
	Debug    bool   `yaml:"debug" json:"debug"`
	LogFile  string `yaml:"log_file" json:"log_file"`
	LogLevel string `yaml:"log_level" json:"log_level"` // KIRO_LOG_LEVEL: debug|info|warn|error
	ProxyURL string `yaml:"proxy_url" json:"proxy_url"`

	UseSystemProxy map[string]bool `yaml:"use_system_proxy" json:"use_system_proxy"` // per-protocol USE_SYSTEM_PROXY_* toggles

	DialTimeoutSec           int `yaml:"dial_timeout_sec" json:"dial_timeout_sec"`
	TLSHandshakeTimeoutSec   int `yaml:"tls_handshake_timeout_sec" json:"tls_handshake_timeout_sec"`
	ResponseHeaderTimeoutSec int `yaml:"response_header_timeout_sec" json:"response_header_timeout_sec"`
	ExpectContinueTimeoutSec int `yaml:"expect_continue_timeout_sec" json:"expect_continue_timeout_sec"`

	// Credential storage
	CredentialDir   string `yaml:"credential_dir" json:"credential_dir"`     // directory holding kiro-auth-token.json and siblings
	PoolPersistPath string `yaml:"pool_persist_path" json:"pool_persist_path"` // configs/provider_pools.json

	// Optional shared-state backend (RedisStateStore); empty RedisAddr keeps
	// the default file-based StateStore.
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"redis_password"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`

	// Provider Pool Manager
	MaxErrorCount       int           `yaml:"max_error_count" json:"max_error_count"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval_ms" json:"health_check_interval_ms"`
	SaveDebounceTime    time.Duration `yaml:"save_debounce_time_ms" json:"save_debounce_time_ms"`

	StickySession StickySessionConfig `yaml:"sticky_session" json:"sticky_session"`

	ProviderFallbackChain map[string][]string      `yaml:"provider_fallback_chain" json:"provider_fallback_chain"`
	ModelFallbackMapping  map[string]FallbackRoute `yaml:"model_fallback_mapping" json:"model_fallback_mapping"`

	// Outbound retry ladder, shared by every Adapter implementation.
	RequestMaxRetries int           `yaml:"request_max_retries" json:"request_max_retries"`
	RequestBaseDelay  time.Duration `yaml:"request_base_delay_ms" json:"request_base_delay_ms"`
	RequestMaxDelay   time.Duration `yaml:"request_max_delay_ms" json:"request_max_delay_ms"`

	// Kiro adapter
	CronNearMinutes     time.Duration `yaml:"cron_near_minutes" json:"cron_near_minutes"`
	KiroOptimisticCache bool          `yaml:"kiro_optimistic_cache" json:"kiro_optimistic_cache"`
	KiroCacheDebug      bool          `yaml:"kiro_cache_debug" json:"kiro_cache_debug"`
}
