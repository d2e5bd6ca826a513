// Package kiro implements the provider.Adapter for Claude-via-Kiro
// (CodeWhisperer) credentials: OAuth token refresh, the upstream's quirky
// message-construction rules, and decoding its AWS-event-stream framed SSE.
package kiro

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"aigateway/internal/apierr"
	"aigateway/internal/cacheest"
	"aigateway/internal/credential"
	"aigateway/internal/oauth"
	"aigateway/internal/provider"
	"aigateway/internal/tokenizer"
)

// supportedModelPrefixes lists the base-model names this adapter answers
// for; Kiro serves Claude models plus its own Amazon Q rebrand.
var supportedModelPrefixes = []string{
	"claude-",
	"amazonq",
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithRefresher overrides the token refresher, for tests.
func WithRefresher(r *oauth.KiroRefresher) Option {
	return func(a *Adapter) {
		if r != nil {
			a.refresher = r
		}
	}
}

// WithCredentialSource lets refreshed tokens be persisted back to the
// credential store; nil (the default) disables persistence.
func WithCredentialSource(src credential.WritableSource) Option {
	return func(a *Adapter) { a.credentialSource = src }
}

// WithNearExpiryWindow overrides CRON_NEAR_MINUTES' proactive-refresh lookahead.
func WithNearExpiryWindow(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.nearExpiryWindow = d
		}
	}
}

// WithRetryConfig overrides the transient-error retry ladder.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(a *Adapter) { a.retryConfig = cfg }
}

// WithCachePool overrides the per-account prompt-cache estimator pool.
func WithCachePool(p *cacheest.Pool) Option {
	return func(a *Adapter) {
		if p != nil {
			a.cachePool = p
		}
	}
}

// WithTokenCounter overrides the token counter used for cache estimation.
func WithTokenCounter(c *tokenizer.Counter) Option {
	return func(a *Adapter) {
		if c != nil {
			a.tokens = c
		}
	}
}

// WithUnhealthyMarker wires the credential manager's health callbacks so a
// terminal auth failure flips the offending credential unhealthy.
func WithUnhealthyMarker(mark func(cred *credential.Credential, errMsg string), markImmediate func(cred *credential.Credential, errMsg string)) Option {
	return func(a *Adapter) {
		a.markUnhealthy = mark
		a.markUnhealthyImmediate = markImmediate
	}
}

// WithEndpoints overrides where chat/usage-limit calls are sent, for tests
// that point the adapter at an httptest.Server instead of the real AWS hosts.
func WithEndpoints(chatURL func(region, model string) string, usageLimitsURL func(region string) string) Option {
	return func(a *Adapter) {
		if chatURL != nil {
			a.chatURLFunc = chatURL
		}
		if usageLimitsURL != nil {
			a.usageLimitsURLFunc = usageLimitsURL
		}
	}
}

// Adapter implements provider.Adapter for claude-kiro-oauth credentials.
type Adapter struct {
	refresher        *oauth.KiroRefresher
	credentialSource credential.WritableSource
	nearExpiryWindow time.Duration
	retryConfig      RetryConfig
	cachePool        *cacheest.Pool
	tokens           *tokenizer.Counter

	markUnhealthy          func(cred *credential.Credential, errMsg string)
	markUnhealthyImmediate func(cred *credential.Credential, errMsg string)

	chatURLFunc        func(region, model string) string
	usageLimitsURLFunc func(region string) string

	mu          sync.Mutex
	credClients map[string]*http.Client
}

// NewAdapter builds an Adapter, defaulting every unset option.
func NewAdapter(opts ...Option) *Adapter {
	a := &Adapter{
		refresher:        oauth.NewKiroRefresher(),
		nearExpiryWindow: DefaultNearExpiryWindow,
		retryConfig:      DefaultRetryConfig(),
		cachePool:        cacheest.NewPool(cacheest.PoolOptions{}),
		tokens:           tokenizer.NewCounter(),
		credClients:      make(map[string]*http.Client),
		chatURLFunc:      chatURL,
		usageLimitsURLFunc: usageLimitsURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Name identifies this adapter's provider type.
func (a *Adapter) Name() credential.ProviderType {
	return credential.ClaudeKiroOAuth
}

// SupportsModel reports whether baseModel is a Claude or Amazon-Q rebrand
// name Kiro is known to serve.
func (a *Adapter) SupportsModel(baseModel string) bool {
	lower := strings.ToLower(baseModel)
	for _, prefix := range supportedModelPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// Invalidate drops any per-credential HTTP client this adapter cached.
func (a *Adapter) Invalidate(credID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.credClients, credID)
}

// clientFor returns the per-credential HTTP client, building one on first use
// over the shared pooled transport (120s timeout, no proxy) and caching it
// until Invalidate drops it.
func (a *Adapter) clientFor(cred *credential.Credential) (*http.Client, error) {
	a.mu.Lock()
	if client, ok := a.credClients[cred.ID]; ok {
		a.mu.Unlock()
		return client, nil
	}
	a.mu.Unlock()

	client, err := httpClientFor("", 120*time.Second)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.credClients[cred.ID] = client
	a.mu.Unlock()
	return client, nil
}

// HealthProbe issues the minimal call the credential manager uses to decide
// whether an unhealthy credential has recovered: a token refresh attempt if
// one is due, otherwise a cheap usage-limits lookup.
func (a *Adapter) HealthProbe(ctx context.Context, cred *credential.Credential) error {
	if err := a.ensureFreshToken(ctx, cred); err != nil {
		return err
	}
	return a.probeUsageLimits(ctx, cred)
}

func (a *Adapter) probeUsageLimits(ctx context.Context, cred *credential.Credential) error {
	client, err := a.clientFor(cred)
	if err != nil {
		return err
	}
	region := cred.Region
	if region == "" {
		region = DefaultRegion
	}
	accessToken, _, _ := cred.Token()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.usageLimitsURLFunc(region), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := client.Do(req)
	if err != nil {
		return apierr.MapNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := provider.ReadAll(resp)
		return apierr.MapHTTPError(resp.StatusCode, body)
	}
	return nil
}

// usageLimitsURL returns the region-templated usage-limits endpoint.
func usageLimitsURL(region string) string {
	return fmt.Sprintf("https://q.%s.amazonaws.com/getUsageLimits", region)
}

// chatURL returns the region-templated chat endpoint. Amazon-Q-rebranded
// models are served through CodeWhisperer's SendMessageStreaming surface;
// everything else goes through the newer generateAssistantResponse surface.
func chatURL(region, model string) string {
	if strings.HasPrefix(strings.ToLower(model), "amazonq") {
		return fmt.Sprintf("https://codewhisperer.%s.amazonaws.com/SendMessageStreaming", region)
	}
	return fmt.Sprintf("https://q.%s.amazonaws.com/generateAssistantResponse", region)
}

func (a *Adapter) cacheEstimatorFor(accountID string) *cacheest.Estimator {
	return a.cachePool.ForAccount(accountID)
}
