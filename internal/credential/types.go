package credential

import (
	"sync"
	"time"
)

// ProviderType is a closed-set tag selecting both the wire protocol and the
// set of models a credential can serve.
type ProviderType string

const (
	GeminiOAuth       ProviderType = "gemini-oauth"
	GeminiAntigravity ProviderType = "gemini-antigravity"
	OpenAICompatible  ProviderType = "openai-compatible"
	OpenAIResponses   ProviderType = "openai-responses"
	ClaudeDirect      ProviderType = "claude-direct"
	ClaudeKiroOAuth   ProviderType = "claude-kiro-oauth"
	QwenOAuth         ProviderType = "qwen-oauth"
)

// protocolPrefix derives the same-protocol family a type belongs to, used by
// the fallback chain's same-protocol requirement.
func (p ProviderType) protocolPrefix() string {
	switch p {
	case GeminiOAuth, GeminiAntigravity:
		return "gemini"
	case OpenAICompatible, OpenAIResponses:
		return "openai"
	case ClaudeDirect, ClaudeKiroOAuth:
		return "claude"
	case QwenOAuth:
		return "qwen"
	default:
		return string(p)
	}
}

// SameProtocol reports whether two provider types share a wire protocol family.
func SameProtocol(a, b ProviderType) bool {
	return a.protocolPrefix() == b.protocolPrefix()
}

// DefaultMaxErrorCount is the error-count threshold at which a credential is
// flipped unhealthy.
const DefaultMaxErrorCount = 3

// ErrorWindow bounds how long consecutive errors accumulate the same counter
// before it resets to 1 on the next error.
const ErrorWindow = 10 * time.Second

// Credential is a single upstream account's secrets plus health state. Cross-
// component references to it are by ID (a uuid, per the manager's registration
// convention), never by pointer identity, so the sticky table and adapter
// caches never need to coordinate lifetimes directly with the pool.
type Credential struct {
	mu sync.RWMutex

	ID           string
	ProviderType ProviderType

	// Secrets.
	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string
	Region       string
	ProfileArn   string
	AuthMethod   string // "social" | "idc", Kiro-specific
	ProjectID    string // GCP project backing this credential, Gemini-specific
	ExpiresAt    time.Time

	Source string `json:"-"`

	// Health fields.
	isHealthy        bool
	isDisabled       bool
	errorCount       int
	lastErrorTime    time.Time
	lastErrorMessage string
	lastUsed         time.Time
	usageCount       int64

	lastHealthCheckTime  time.Time
	lastHealthCheckModel string

	// Capability hints.
	NotSupportedModels map[string]struct{}
	CheckHealth        bool
	CheckModelName     string
	CustomName         string
}

// CredentialState captures the mutable runtime fields persisted across restarts.
type CredentialState struct {
	IsHealthy            bool      `json:"is_healthy"`
	IsDisabled           bool      `json:"is_disabled"`
	ErrorCount           int       `json:"error_count"`
	LastErrorTime        time.Time `json:"last_error_time,omitempty"`
	LastErrorMessage     string    `json:"last_error_message,omitempty"`
	LastUsed             time.Time `json:"last_used,omitempty"`
	UsageCount           int64     `json:"usage_count"`
	LastHealthCheckTime  time.Time `json:"last_health_check_time,omitempty"`
	LastHealthCheckModel string    `json:"last_health_check_model,omitempty"`
}

// NewCredential returns a Credential that starts healthy, never used, with no
// errors recorded — the zero state the selection tuple favours first.
func NewCredential(id string, pt ProviderType) *Credential {
	return &Credential{
		ID:                 id,
		ProviderType:       pt,
		isHealthy:          true,
		NotSupportedModels: make(map[string]struct{}),
	}
}

func (c *Credential) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isHealthy
}

func (c *Credential) IsDisabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isDisabled
}

// Selectable reports whether this credential may be chosen for new traffic.
func (c *Credential) Selectable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isHealthy && !c.isDisabled
}

// SupportsModel reports whether model is absent from NotSupportedModels.
func (c *Credential) SupportsModel(model string) bool {
	if model == "" {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, blocked := c.NotSupportedModels[model]
	return !blocked
}

func (c *Credential) LastUsed() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUsed
}

func (c *Credential) UsageCount() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.usageCount
}

func (c *Credential) ErrorCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errorCount
}

func (c *Credential) LastErrorMessage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErrorMessage
}

func (c *Credential) LastHealthCheckModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastHealthCheckModel
}

// IsExpired reports whether the access token is past its expiry.
func (c *Credential) IsExpired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// NearExpiry reports whether the token expires within lookahead of now.
func (c *Credential) NearExpiry(lookahead time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ExpiresAt.IsZero() {
		return true
	}
	return time.Until(c.ExpiresAt) <= lookahead
}

// TouchUsage records a successful dispatch through this credential.
func (c *Credential) TouchUsage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsed = time.Now()
	c.usageCount++
}

// MarkError applies the windowed error-count rule: within ErrorWindow of the
// previous error the counter increments, otherwise it resets to 1. The
// credential flips unhealthy once the counter reaches maxErrorCount. Returns
// the resulting isHealthy value.
func (c *Credential) MarkError(maxErrorCount int, msg string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if !c.lastErrorTime.IsZero() && now.Sub(c.lastErrorTime) <= ErrorWindow {
		c.errorCount++
	} else {
		c.errorCount = 1
	}
	c.lastErrorTime = now
	c.lastErrorMessage = msg
	c.lastUsed = now // a broken credential must not be immediately re-picked by LRU
	if c.errorCount >= maxErrorCount {
		c.isHealthy = false
	}
	return c.isHealthy
}

// MarkImmediateUnhealthy forces errorCount to max and isHealthy false
// regardless of the error window.
func (c *Credential) MarkImmediateUnhealthy(maxErrorCount int, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.errorCount = maxErrorCount
	c.isHealthy = false
	c.lastErrorTime = now
	c.lastErrorMessage = msg
	c.lastUsed = now
}

// MarkHealthy clears error bookkeeping and stamps the health-check time.
// resetUsage mirrors a successful probe from PerformHealthChecks; ordinary
// successful requests should pass resetUsage=false.
func (c *Credential) MarkHealthy(resetUsage bool, healthCheckModel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isHealthy = true
	c.errorCount = 0
	c.lastErrorTime = time.Time{}
	c.lastErrorMessage = ""
	c.lastHealthCheckTime = time.Now()
	if healthCheckModel != "" {
		c.lastHealthCheckModel = healthCheckModel
	}
	if resetUsage {
		c.usageCount = 0
	} else {
		c.usageCount++
		c.lastUsed = time.Now()
	}
}

// Token returns the current access/refresh token and expiry under lock, for
// callers (e.g. an adapter's refresh path) that must read them atomically
// with respect to a concurrent UpdateToken.
func (c *Credential) Token() (accessToken, refreshToken string, expiresAt time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AccessToken, c.RefreshToken, c.ExpiresAt
}

// UpdateToken atomically applies a successful refresh. An empty refreshToken
// or zero expiresAt leaves the existing value in place (some refresh
// responses omit a rotated refresh token).
func (c *Credential) UpdateToken(accessToken, refreshToken string, expiresAt time.Time, profileArn string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AccessToken = accessToken
	if refreshToken != "" {
		c.RefreshToken = refreshToken
	}
	if !expiresAt.IsZero() {
		c.ExpiresAt = expiresAt
	}
	if profileArn != "" {
		c.ProfileArn = profileArn
	}
}

// SetProjectID records the GCP project resolved for this credential by the
// adapter's project-detection flow, independent of token refresh.
func (c *Credential) SetProjectID(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ProjectID = projectID
}

func (c *Credential) SetDisabled(disabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isDisabled = disabled
}

// Clone returns a deep copy safe for the caller to read without holding locks.
func (c *Credential) Clone() *Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := &Credential{
		ID:                   c.ID,
		ProviderType:         c.ProviderType,
		AccessToken:          c.AccessToken,
		RefreshToken:         c.RefreshToken,
		ClientID:             c.ClientID,
		ClientSecret:         c.ClientSecret,
		Region:               c.Region,
		ProfileArn:           c.ProfileArn,
		AuthMethod:           c.AuthMethod,
		ProjectID:            c.ProjectID,
		ExpiresAt:            c.ExpiresAt,
		Source:               c.Source,
		isHealthy:            c.isHealthy,
		isDisabled:           c.isDisabled,
		errorCount:           c.errorCount,
		lastErrorTime:        c.lastErrorTime,
		lastErrorMessage:     c.lastErrorMessage,
		lastUsed:             c.lastUsed,
		usageCount:           c.usageCount,
		lastHealthCheckTime:  c.lastHealthCheckTime,
		lastHealthCheckModel: c.lastHealthCheckModel,
		CheckHealth:          c.CheckHealth,
		CheckModelName:       c.CheckModelName,
		CustomName:           c.CustomName,
		NotSupportedModels:   make(map[string]struct{}, len(c.NotSupportedModels)),
	}
	for k := range c.NotSupportedModels {
		cp.NotSupportedModels[k] = struct{}{}
	}
	return cp
}

// SnapshotState captures mutable runtime data for persistence.
func (c *Credential) SnapshotState() *CredentialState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &CredentialState{
		IsHealthy:            c.isHealthy,
		IsDisabled:           c.isDisabled,
		ErrorCount:           c.errorCount,
		LastErrorTime:        c.lastErrorTime,
		LastErrorMessage:     c.lastErrorMessage,
		LastUsed:             c.lastUsed,
		UsageCount:           c.usageCount,
		LastHealthCheckTime:  c.lastHealthCheckTime,
		LastHealthCheckModel: c.lastHealthCheckModel,
	}
}

// RestoreState applies persisted runtime data onto the credential.
func (c *Credential) RestoreState(state *CredentialState) {
	if state == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isHealthy = state.IsHealthy
	c.isDisabled = state.IsDisabled
	c.errorCount = state.ErrorCount
	c.lastErrorTime = state.LastErrorTime
	c.lastErrorMessage = state.LastErrorMessage
	c.lastUsed = state.LastUsed
	c.usageCount = state.UsageCount
	c.lastHealthCheckTime = state.LastHealthCheckTime
	c.lastHealthCheckModel = state.LastHealthCheckModel
}

// Snapshot is a read-only view used for stats/events; it never exposes secrets.
type Snapshot struct {
	ID                   string
	ProviderType         ProviderType
	IsHealthy            bool
	IsDisabled           bool
	ErrorCount           int
	LastErrorMessage     string
	LastUsed             time.Time
	UsageCount           int64
	LastHealthCheckTime  time.Time
	LastHealthCheckModel string
}

func (c *Credential) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		ID:                   c.ID,
		ProviderType:         c.ProviderType,
		IsHealthy:            c.isHealthy,
		IsDisabled:           c.isDisabled,
		ErrorCount:           c.errorCount,
		LastErrorMessage:     c.lastErrorMessage,
		LastUsed:             c.lastUsed,
		UsageCount:           c.usageCount,
		LastHealthCheckTime:  c.lastHealthCheckTime,
		LastHealthCheckModel: c.lastHealthCheckModel,
	}
}
