package config

import (
	"aigateway/internal/credential"
	"aigateway/internal/kiro"
	"aigateway/internal/provider/gemini"
)

// CredentialOptions converts cfg into the Options the Provider Pool Manager
// is constructed with, translating the flat YAML/env shape into the
// credential package's native types.
func (cfg *GatewayConfig) CredentialOptions() credential.Options {
	return credential.Options{
		MaxErrorCount:      cfg.MaxErrorCount,
		PersistDebounce:    cfg.SaveDebounceTime,
		PersistPath:        cfg.PoolPersistPath,
		Sticky: credential.StickyOptions{
			TTL:             cfg.StickySession.TTL,
			MaxSessions:     cfg.StickySession.MaxSessions,
			CleanupInterval: cfg.StickySession.CleanupInterval,
		},
		FallbackChain: cfg.fallbackChain(),
		ModelFallback: cfg.modelFallback(),
	}
}

func (cfg *GatewayConfig) fallbackChain() map[credential.ProviderType][]credential.ProviderType {
	if len(cfg.ProviderFallbackChain) == 0 {
		return nil
	}
	out := make(map[credential.ProviderType][]credential.ProviderType, len(cfg.ProviderFallbackChain))
	for from, tos := range cfg.ProviderFallbackChain {
		targets := make([]credential.ProviderType, 0, len(tos))
		for _, to := range tos {
			targets = append(targets, credential.ProviderType(to))
		}
		out[credential.ProviderType(from)] = targets
	}
	return out
}

func (cfg *GatewayConfig) modelFallback() map[string]credential.FallbackTarget {
	if len(cfg.ModelFallbackMapping) == 0 {
		return nil
	}
	out := make(map[string]credential.FallbackTarget, len(cfg.ModelFallbackMapping))
	for model, route := range cfg.ModelFallbackMapping {
		out[model] = credential.FallbackTarget{
			TargetProviderType: credential.ProviderType(route.TargetProviderType),
			TargetModel:        route.TargetModel,
		}
	}
	return out
}

// GeminiRetryConfig converts cfg's shared retry ladder into the Gemini
// adapter's RetryConfig shape.
func (cfg *GatewayConfig) GeminiRetryConfig() gemini.RetryConfig {
	return gemini.RetryConfig{
		MaxRetries: cfg.RequestMaxRetries,
		BaseDelay:  cfg.RequestBaseDelay,
		MaxDelay:   cfg.RequestMaxDelay,
	}
}

// KiroRetryConfig converts cfg's shared retry ladder into the Kiro adapter's
// RetryConfig shape.
func (cfg *GatewayConfig) KiroRetryConfig() kiro.RetryConfig {
	return kiro.RetryConfig{
		MaxRetries: cfg.RequestMaxRetries,
		BaseDelay:  cfg.RequestBaseDelay,
		MaxDelay:   cfg.RequestMaxDelay,
	}
}
