package credential

// stickyLookup resolves sessionID to a bound credential for pt, validating
// that it still supports model and is healthy/not-disabled. Any mismatch
// drops the binding; a model-support miss alone merely bypasses stickiness
// for this call without destroying the binding, matching the spec's
// "missing/expired binding silently degrades" contract.
func (m *Manager) stickyLookup(pt ProviderType, model, sessionID string) (*Credential, bool) {
	credID, ok := m.sticky.Lookup(pt, sessionID)
	if !ok {
		return nil, false
	}

	m.mu.RLock()
	cred := m.findCredentialLocked(credID)
	m.mu.RUnlock()

	if cred == nil {
		m.sticky.Drop(sessionID)
		return nil, false
	}
	if !cred.Selectable() {
		m.sticky.Drop(sessionID)
		return nil, false
	}
	if !cred.SupportsModel(model) {
		// Model-support miss only: leave the binding intact for other models.
		return nil, false
	}
	return cred, true
}

func (m *Manager) stickyBind(pt ProviderType, sessionID, credID string) {
	m.sticky.Bind(pt, sessionID, credID)
}
