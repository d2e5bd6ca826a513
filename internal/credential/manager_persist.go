package credential

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"aigateway/internal/filelock"
)

func readFileIfExists(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// --- per-credential runtime state (StateStore) ---

func (m *Manager) restoreCredentialState(cred *Credential) {
	if cred == nil || m.stateStore == nil {
		return
	}
	st, err := m.stateStore.Restore(context.Background(), cred)
	if err != nil || st == nil {
		return
	}
	cred.RestoreState(st)
}

func (m *Manager) persistCredentialState(cred *Credential, force bool) {
	if cred == nil || m.stateStore == nil {
		return
	}
	state := cred.SnapshotState()
	if err := m.stateStore.Persist(context.Background(), cred, state); err != nil {
		m.logger.WithError(err).Warnf("persist state failed for %s", cred.ID)
	}
}

func (m *Manager) deleteCredentialState(credID string) {
	if credID == "" || m.stateStore == nil {
		return
	}
	if err := m.stateStore.Delete(context.Background(), credID); err != nil {
		m.logger.WithError(err).Warnf("delete state failed for %s", credID)
	}
}

// --- debounced pool-file persistence ---

// poolFileCredential is one entry of the pool persistence file: full secrets
// plus health bookkeeping, so a restart resumes with the same rotation state.
type poolFileCredential struct {
	ID                   string    `json:"id"`
	AccessToken          string    `json:"accessToken,omitempty"`
	RefreshToken         string    `json:"refreshToken,omitempty"`
	ExpiresAt            time.Time `json:"expiresAt,omitempty"`
	ClientID             string    `json:"clientId,omitempty"`
	ClientSecret         string    `json:"clientSecret,omitempty"`
	AuthMethod           string    `json:"authMethod,omitempty"`
	ProfileArn           string    `json:"profileArn,omitempty"`
	Region               string    `json:"region,omitempty"`
	CustomName           string    `json:"customName,omitempty"`
	IsHealthy            bool      `json:"isHealthy"`
	IsDisabled           bool      `json:"isDisabled"`
	ErrorCount           int       `json:"errorCount"`
	LastErrorTime        time.Time `json:"lastErrorTime,omitempty"`
	LastErrorMessage     string    `json:"lastErrorMessage,omitempty"`
	LastUsed             time.Time `json:"lastUsed,omitempty"`
	UsageCount           int64     `json:"usageCount"`
	LastHealthCheckTime  time.Time `json:"lastHealthCheckTime,omitempty"`
	LastHealthCheckModel string    `json:"lastHealthCheckModel,omitempty"`
}

func toPoolFileCredential(c *Credential) poolFileCredential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return poolFileCredential{
		ID:                   c.ID,
		AccessToken:          c.AccessToken,
		RefreshToken:         c.RefreshToken,
		ExpiresAt:            c.ExpiresAt,
		ClientID:             c.ClientID,
		ClientSecret:         c.ClientSecret,
		AuthMethod:           c.AuthMethod,
		ProfileArn:           c.ProfileArn,
		Region:               c.Region,
		CustomName:           c.CustomName,
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

// schedulePersist enqueues pt into the pending set and (re)arms the single
// debounce timer; the persistor coalesces any number of mutations within the
// debounce window into one file rewrite.
func (m *Manager) schedulePersist(pt ProviderType) {
	if m.persistPath == "" {
		return
	}
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	m.pendingPersist[pt] = struct{}{}
	if m.persistTimer != nil {
		m.persistTimer.Stop()
	}
	m.persistTimer = time.AfterFunc(m.persistDebounce, m.flushPersist)
}

// flushPersist reads the current on-disk pool file (creating it if absent),
// replaces only the pending provider types, and rewrites the whole file
// atomically under an exclusive lock.
func (m *Manager) flushPersist() {
	m.persistMu.Lock()
	pending := m.pendingPersist
	m.pendingPersist = make(map[ProviderType]struct{})
	m.persistMu.Unlock()

	if len(pending) == 0 || m.persistPath == "" {
		return
	}

	err := filelock.WithExclusive(m.persistPath, func() error {
		existing := make(map[string][]poolFileCredential)
		if data, readErr := readFileIfExists(m.persistPath); readErr == nil && len(data) > 0 {
			_ = json.Unmarshal(data, &existing)
		}
		for pt := range pending {
			m.mu.RLock()
			list := m.pools[pt]
			entries := make([]poolFileCredential, 0, len(list))
			for _, c := range list {
				entries = append(entries, toPoolFileCredential(c))
			}
			m.mu.RUnlock()
			existing[string(pt)] = entries
		}
		data, err := json.MarshalIndent(existing, "", "  ")
		if err != nil {
			return err
		}
		return filelock.WriteAtomic(m.persistPath, data, 0o600)
	})
	if err != nil {
		m.logger.WithError(err).Warn("pool persist flush failed")
	}
}
