package gemini

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"aigateway/internal/credential"
	"aigateway/internal/models"
	"aigateway/internal/oauth"
	"aigateway/internal/provider"
	"aigateway/internal/tokenizer"
)

// DefaultCodeAssistEndpoint is the Code Assist API host the reference CLI
// client talks to.
const DefaultCodeAssistEndpoint = "https://cloudcode-pa.googleapis.com"

// Option customizes an Adapter built by NewAdapter.
type Option func(*Adapter)

// WithOAuthManager injects a shared Manager used to refresh every credential
// this adapter serves. When omitted, refresh builds a Manager scoped to the
// credential's own ClientID/ClientSecret on demand.
func WithOAuthManager(m *oauth.Manager) Option {
	return func(a *Adapter) { a.oauthManager = m }
}

// WithCredentialSource enables persisting refreshed tokens back to storage.
func WithCredentialSource(src credential.WritableSource) Option {
	return func(a *Adapter) { a.credentialSource = src }
}

// WithNearExpiryWindow overrides the proactive-refresh lookahead.
func WithNearExpiryWindow(d time.Duration) Option {
	return func(a *Adapter) { a.nearExpiryWindow = d }
}

// WithRetryConfig overrides the transient-error retry ladder.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(a *Adapter) { a.retryConfig = cfg }
}

// WithTokenCounter overrides the token counter used for usage accounting.
func WithTokenCounter(c *tokenizer.Counter) Option {
	return func(a *Adapter) { a.tokens = c }
}

// WithUnhealthyMarker wires the pool's windowed/immediate unhealthy-marking
// callbacks, keeping this package independent of *credential.Manager.
func WithUnhealthyMarker(mark, markImmediate func(cred *credential.Credential, errMsg string)) Option {
	return func(a *Adapter) {
		a.markUnhealthy = mark
		a.markUnhealthyImmediate = markImmediate
	}
}

// WithCodeAssistEndpoint overrides the Code Assist host, primarily for
// pointing tests at an httptest.Server.
func WithCodeAssistEndpoint(endpoint string) Option {
	return func(a *Adapter) { a.endpoint = endpoint }
}

// Adapter implements provider.Adapter for Gemini Code Assist's chat surface.
type Adapter struct {
	oauthManager     *oauth.Manager
	credentialSource credential.WritableSource
	nearExpiryWindow time.Duration
	retryConfig      RetryConfig
	tokens           *tokenizer.Counter

	markUnhealthy          func(cred *credential.Credential, errMsg string)
	markUnhealthyImmediate func(cred *credential.Credential, errMsg string)

	endpoint string

	mu          sync.Mutex
	credClients map[string]*http.Client
}

// NewAdapter builds an Adapter with the documented defaults, customizable
// through Option.
func NewAdapter(opts ...Option) *Adapter {
	a := &Adapter{
		nearExpiryWindow: DefaultNearExpiryWindow,
		retryConfig:      DefaultRetryConfig(),
		tokens:           tokenizer.NewCounter(),
		endpoint:         DefaultCodeAssistEndpoint,
		credClients:      make(map[string]*http.Client),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name identifies this adapter to the Registry.
func (a *Adapter) Name() credential.ProviderType {
	return credential.GeminiOAuth
}

// SupportsModel reports whether baseModel (after alias resolution) is a
// known Gemini base model (with or without its variant prefixes and
// suffixes), or any other model name starting with "gemini-".
func (a *Adapter) SupportsModel(baseModel string) bool {
	resolved := resolveAndValidate(baseModel)
	if models.IsValidModel(resolved) {
		return true
	}
	return strings.HasPrefix(strings.ToLower(resolved), "gemini-")
}

// Invalidate drops any adapter-local cache keyed by credID.
func (a *Adapter) Invalidate(credID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.credClients, credID)
}

// clientFor returns the shared pooled HTTP client (no proxy), cached per
// credential until Invalidate drops the entry.
func (a *Adapter) clientFor(cred *credential.Credential) (*http.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if client, ok := a.credClients[cred.ID]; ok {
		return client, nil
	}
	client, err := httpClientFor("")
	if err != nil {
		return nil, fmt.Errorf("gemini: build http client for %s: %w", cred.ID, err)
	}
	a.credClients[cred.ID] = client
	return client, nil
}
