package config

import (
	"testing"
	"time"

	"aigateway/internal/credential"
)

func TestCredentialOptionsFromDefaults(t *testing.T) {
	cfg := DefaultGatewayConfig()
	opts := cfg.CredentialOptions()

	if opts.MaxErrorCount != cfg.MaxErrorCount {
		t.Errorf("MaxErrorCount = %d, want %d", opts.MaxErrorCount, cfg.MaxErrorCount)
	}
	if opts.PersistPath != cfg.PoolPersistPath {
		t.Errorf("PersistPath = %q, want %q", opts.PersistPath, cfg.PoolPersistPath)
	}
	if opts.Sticky.TTL != cfg.StickySession.TTL {
		t.Errorf("Sticky.TTL = %v, want %v", opts.Sticky.TTL, cfg.StickySession.TTL)
	}
	if opts.Sticky.MaxSessions != cfg.StickySession.MaxSessions {
		t.Errorf("Sticky.MaxSessions = %d, want %d", opts.Sticky.MaxSessions, cfg.StickySession.MaxSessions)
	}
}

func TestCredentialOptionsFallbackChain(t *testing.T) {
	cfg := DefaultGatewayConfig()
	cfg.ProviderFallbackChain = map[string][]string{
		"gemini-oauth": {"gemini-antigravity", "claude-kiro-oauth"},
	}
	cfg.ModelFallbackMapping = map[string]FallbackRoute{
		"gpt-4o": {TargetProviderType: "claude-kiro-oauth", TargetModel: "claude-sonnet-4"},
	}

	opts := cfg.CredentialOptions()

	chain := opts.FallbackChain[credential.GeminiOAuth]
	if len(chain) != 2 || chain[0] != credential.GeminiAntigravity || chain[1] != credential.ClaudeKiroOAuth {
		t.Fatalf("unexpected fallback chain: %+v", chain)
	}

	target, ok := opts.ModelFallback["gpt-4o"]
	if !ok {
		t.Fatal("expected a model fallback entry for gpt-4o")
	}
	if target.TargetProviderType != credential.ClaudeKiroOAuth || target.TargetModel != "claude-sonnet-4" {
		t.Errorf("unexpected fallback target: %+v", target)
	}
}

func TestRetryConfigBuildersMatchRequestLadder(t *testing.T) {
	cfg := DefaultGatewayConfig()
	cfg.RequestMaxRetries = 5
	cfg.RequestBaseDelay = 2 * time.Second
	cfg.RequestMaxDelay = 20 * time.Second

	gRetry := cfg.GeminiRetryConfig()
	if gRetry.MaxRetries != 5 || gRetry.BaseDelay != 2*time.Second || gRetry.MaxDelay != 20*time.Second {
		t.Errorf("unexpected gemini retry config: %+v", gRetry)
	}

	kRetry := cfg.KiroRetryConfig()
	if kRetry.MaxRetries != 5 || kRetry.BaseDelay != 2*time.Second || kRetry.MaxDelay != 20*time.Second {
		t.Errorf("unexpected kiro retry config: %+v", kRetry)
	}
}
