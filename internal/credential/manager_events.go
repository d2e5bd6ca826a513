package credential

import (
	"context"
	"time"

	"aigateway/internal/events"
)

// Summary captures non-sensitive credential fields for event payloads and
// external stats surfaces; it never carries secrets.
type Summary struct {
	ID           string       `json:"id"`
	ProviderType ProviderType `json:"providerType"`
	CustomName   string       `json:"customName,omitempty"`
	IsHealthy    bool         `json:"isHealthy"`
	IsDisabled   bool         `json:"isDisabled"`
	ErrorCount   int          `json:"errorCount"`
	LastUsed     time.Time    `json:"lastUsed,omitempty"`
	UsageCount   int64        `json:"usageCount"`
}

// Event describes a single change to a credential.
type Event struct {
	Action     string    `json:"action"`
	Timestamp  time.Time `json:"timestamp"`
	Credential Summary   `json:"credential"`
}

// SyncEvent contains a snapshot of all credentials after a (re)load.
type SyncEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Credentials []Summary `json:"credentials"`
}

func (m *Manager) getPublisher() events.Publisher {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.publisher
}

func (m *Manager) emitEvent(action string, cred *Credential) {
	publisher := m.getPublisher()
	if publisher == nil || cred == nil {
		return
	}
	summary := summarize(cred)
	publisher.Publish(
		context.Background(),
		events.TopicCredentialChanged,
		Event{Action: action, Timestamp: time.Now().UTC(), Credential: summary},
		map[string]string{"credential_id": summary.ID},
	)
}

func (m *Manager) emitSnapshot() {
	publisher := m.getPublisher()
	if publisher == nil {
		return
	}
	creds := m.GetAllCredentials("")
	summaries := make([]Summary, 0, len(creds))
	for _, c := range creds {
		summaries = append(summaries, summarize(c))
	}
	publisher.Publish(
		context.Background(),
		events.TopicCredentialsSynced,
		SyncEvent{Timestamp: time.Now().UTC(), Credentials: summaries},
		nil,
	)
}

func summarize(cred *Credential) Summary {
	if cred == nil {
		return Summary{}
	}
	snap := cred.Snapshot()
	return Summary{
		ID:           snap.ID,
		ProviderType: snap.ProviderType,
		CustomName:   cred.CustomName,
		IsHealthy:    snap.IsHealthy,
		IsDisabled:   snap.IsDisabled,
		ErrorCount:   snap.ErrorCount,
		LastUsed:     snap.LastUsed,
		UsageCount:   snap.UsageCount,
	}
}
