package credential

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"aigateway/internal/events"

	log "github.com/sirupsen/logrus"
)

// HealthProbeFunc performs the minimal upstream call PerformHealthChecks uses
// to decide whether an unhealthy credential has recovered. Adapters register
// one per provider type via SetHealthProbe so the pool manager never imports
// the provider package (which itself imports this one).
type HealthProbeFunc func(ctx context.Context, cred *Credential) error

// FallbackTarget is one entry of the process-wide modelFallbackMapping:
// model -> {targetProviderType, targetModel}.
type FallbackTarget struct {
	TargetProviderType ProviderType
	TargetModel        string
}

// Options configure a Manager at construction time.
type Options struct {
	MaxErrorCount      int           // default DefaultMaxErrorCount
	HealthCheckBackoff time.Duration // default 2m, skip re-probing an unhealthy credential sooner than this
	PersistDebounce    time.Duration // default 1s
	PersistPath        string        // pool persistence file, e.g. configs/provider_pools.json
	Sources            map[ProviderType][]Source
	StateStore         StateStore
	Sticky             StickyOptions
	FallbackChain      map[ProviderType][]ProviderType
	ModelFallback      map[string]FallbackTarget
}

// Manager is the Provider Pool Manager: it holds every credential grouped by
// provider type, selects one per request, records outcomes, and runs
// periodic health probes.
type Manager struct {
	mu    sync.RWMutex
	pools map[ProviderType][]*Credential

	sources    map[ProviderType][]Source
	credSource map[string]Source

	maxErrorCount      int
	healthCheckBackoff time.Duration

	fallbackChain map[ProviderType][]ProviderType
	modelFallback map[string]FallbackTarget

	sticky *StickyTable

	stateStore StateStore

	probesMu sync.RWMutex
	probes   map[ProviderType]HealthProbeFunc

	persistPath     string
	persistDebounce time.Duration
	persistMu       sync.Mutex
	pendingPersist  map[ProviderType]struct{}
	persistTimer    *time.Timer

	publisher events.Publisher
	logger    *log.Entry

	healthSchedOnce     sync.Once
	healthSchedStopOnce sync.Once
	healthSchedStop     chan struct{}

	closeOnce sync.Once
}

// NewManager constructs a Manager from Options, defaulting every unset knob.
func NewManager(opts Options) *Manager {
	maxErr := opts.MaxErrorCount
	if maxErr <= 0 {
		maxErr = DefaultMaxErrorCount
	}
	backoff := opts.HealthCheckBackoff
	if backoff <= 0 {
		backoff = 2 * time.Minute
	}
	debounce := opts.PersistDebounce
	if debounce <= 0 {
		debounce = time.Second
	}
	m := &Manager{
		pools:              make(map[ProviderType][]*Credential),
		sources:            opts.Sources,
		credSource:         make(map[string]Source),
		maxErrorCount:      maxErr,
		healthCheckBackoff: backoff,
		fallbackChain:      opts.FallbackChain,
		modelFallback:      opts.ModelFallback,
		sticky:             NewStickyTable(opts.Sticky),
		stateStore:         opts.StateStore,
		probes:             make(map[ProviderType]HealthProbeFunc),
		persistPath:        opts.PersistPath,
		persistDebounce:    debounce,
		pendingPersist:     make(map[ProviderType]struct{}),
		logger:             log.WithField("component", "provider_pool"),
	}
	if m.fallbackChain == nil {
		m.fallbackChain = make(map[ProviderType][]ProviderType)
	}
	if m.modelFallback == nil {
		m.modelFallback = make(map[string]FallbackTarget)
	}
	return m
}

// SetEventPublisher wires the hub used to broadcast pool events.
func (m *Manager) SetEventPublisher(p events.Publisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publisher = p
}

// SetHealthProbe registers the minimal-call probe PerformHealthChecks uses
// for a provider type.
func (m *Manager) SetHealthProbe(pt ProviderType, fn HealthProbeFunc) {
	m.probesMu.Lock()
	defer m.probesMu.Unlock()
	m.probes[pt] = fn
}

func (m *Manager) healthProbe(pt ProviderType) HealthProbeFunc {
	m.probesMu.RLock()
	defer m.probesMu.RUnlock()
	return m.probes[pt]
}

// LoadCredentials loads every configured source, merging restored runtime
// state on top of freshly loaded secrets.
func (m *Manager) LoadCredentials() error {
	ctx := context.Background()
	if len(m.sources) == 0 {
		return fmt.Errorf("no credential sources configured")
	}

	pools := make(map[ProviderType][]*Credential, len(m.sources))
	credSource := make(map[string]Source)
	total := 0

	for pt, srcs := range m.sources {
		seen := make(map[string]struct{})
		var list []*Credential
		for _, src := range srcs {
			if src == nil {
				continue
			}
			creds, err := src.Load(ctx)
			if err != nil {
				m.logger.WithError(err).Warnf("credential source %s load failed for %s", src.Name(), pt)
				continue
			}
			for _, cred := range creds {
				if cred == nil || cred.ID == "" {
					continue
				}
				if _, dup := seen[cred.ID]; dup {
					m.logger.Warnf("duplicate credential id %s in source %s, skipping", cred.ID, src.Name())
					continue
				}
				cred.ProviderType = pt
				if stateful, ok := src.(StatefulSource); ok {
					if err := stateful.RestoreState(ctx, cred); err != nil {
						m.logger.WithError(err).Warnf("restore state failed for %s", cred.ID)
					}
				} else {
					m.restoreCredentialState(cred)
				}
				list = append(list, cred)
				credSource[cred.ID] = src
				seen[cred.ID] = struct{}{}
			}
		}
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
		pools[pt] = list
		total += len(list)
	}

	m.mu.Lock()
	m.pools = pools
	m.credSource = credSource
	m.mu.Unlock()

	m.logger.Infof("loaded %d credentials across %d provider type(s)", total, len(pools))
	m.emitSnapshot()
	return nil
}

// GetAllCredentials returns cloned snapshots of every credential, for a
// provider type if given, or the whole pool when pt is empty.
func (m *Manager) GetAllCredentials(pt ProviderType) []*Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if pt != "" {
		list := m.pools[pt]
		out := make([]*Credential, len(list))
		for i, c := range list {
			out[i] = c.Clone()
		}
		return out
	}
	var out []*Credential
	for _, list := range m.pools {
		for _, c := range list {
			out = append(out, c.Clone())
		}
	}
	return out
}

// GetCredentialByID returns a cloned credential by id, if present.
func (m *Manager) GetCredentialByID(id string) (*Credential, bool) {
	if id == "" {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, list := range m.pools {
		for _, c := range list {
			if c.ID == id {
				return c.Clone(), true
			}
		}
	}
	return nil, false
}

// DisableCredential sets isDisabled and persists the change.
func (m *Manager) DisableCredential(credID string) error {
	target, err := m.mutateCredential(credID, func(c *Credential) { c.isDisabled = true })
	if err != nil {
		return err
	}
	m.logger.Infof("disabled credential %s", credID)
	m.persistCredentialState(target, true)
	m.emitEvent("disabled", target)
	return nil
}

// EnableCredential clears isDisabled. Per design, disabled sticky bindings
// are dropped lazily at next access, not immediately here.
func (m *Manager) EnableCredential(credID string) error {
	target, err := m.mutateCredential(credID, func(c *Credential) { c.isDisabled = false })
	if err != nil {
		return err
	}
	m.logger.Infof("enabled credential %s", credID)
	m.persistCredentialState(target, true)
	m.emitEvent("enabled", target)
	return nil
}

// DeleteCredential removes a credential from the pool and its backing source.
func (m *Manager) DeleteCredential(credID string) error {
	target, src, err := m.removeCredential(credID)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if writable, ok := src.(WritableSource); ok {
		if err := writable.Delete(ctx, credID); err != nil {
			return fmt.Errorf("delete credential via %s: %w", src.Name(), err)
		}
	}
	m.logger.Infof("deleted credential %s", credID)
	m.deleteCredentialState(credID)
	if target != nil {
		m.emitEvent("deleted", target)
	}
	return nil
}

// ResetProviderCounters clears error bookkeeping for every credential of a
// provider type, or the whole pool when pt is empty.
func (m *Manager) ResetProviderCounters(pt ProviderType) {
	m.mu.RLock()
	var targets []*Credential
	if pt != "" {
		targets = append(targets, m.pools[pt]...)
	} else {
		for _, list := range m.pools {
			targets = append(targets, list...)
		}
	}
	m.mu.RUnlock()

	for _, c := range targets {
		c.mu.Lock()
		c.errorCount = 0
		c.lastErrorTime = time.Time{}
		c.lastErrorMessage = ""
		c.mu.Unlock()
	}
}

// ProviderStats summarizes one provider type's pool.
type ProviderStats struct {
	Total     int
	Healthy   int
	Unhealthy int
	Disabled  int
}

// GetProviderStats summarizes the pool for a provider type.
func (m *Manager) GetProviderStats(pt ProviderType) ProviderStats {
	m.mu.RLock()
	list := m.pools[pt]
	m.mu.RUnlock()

	var stats ProviderStats
	stats.Total = len(list)
	for _, c := range list {
		snap := c.Snapshot()
		if snap.IsDisabled {
			stats.Disabled++
			continue
		}
		if snap.IsHealthy {
			stats.Healthy++
		} else {
			stats.Unhealthy++
		}
	}
	return stats
}

// IsAllProvidersUnhealthy reports whether every non-disabled credential of a
// provider type is currently unhealthy (pool exhausted for that type).
func (m *Manager) IsAllProvidersUnhealthy(pt ProviderType) bool {
	stats := m.GetProviderStats(pt)
	eligible := stats.Total - stats.Disabled
	return eligible > 0 && stats.Healthy == 0
}

// GetFallbackChain returns the configured same-protocol fallback chain.
func (m *Manager) GetFallbackChain(pt ProviderType) []ProviderType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ProviderType(nil), m.fallbackChain[pt]...)
}

// SetFallbackChain replaces the fallback chain for a provider type.
func (m *Manager) SetFallbackChain(pt ProviderType, chain []ProviderType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbackChain[pt] = chain
}

// Destroy cancels the debounced-save timer and the sticky-session cleanup
// timer, and clears the session table. In-flight requests are unaffected.
func (m *Manager) Destroy() {
	m.closeOnce.Do(func() {
		m.persistMu.Lock()
		if m.persistTimer != nil {
			m.persistTimer.Stop()
		}
		m.persistMu.Unlock()
		m.sticky.Stop()
		m.sticky.mu.Lock()
		m.sticky.cache.Purge()
		m.sticky.mu.Unlock()
		m.StopHealthScheduler()
	})
}
