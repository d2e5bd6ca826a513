package credential

import (
	"context"
	"time"
)

// MarkProviderUnhealthy applies the windowed error-count rule to cred and, if
// it crossed the unhealthy threshold, flips it unhealthy and emits a
// health-flip event. Any sticky binding pointed at cred is not dropped here:
// stickyLookup discards a binding lazily the next time it is consulted and
// finds the bound credential no longer selectable.
func (m *Manager) MarkProviderUnhealthy(pt ProviderType, cred *Credential, errMsg string) {
	if cred == nil {
		return
	}
	wasHealthy := cred.IsHealthy()
	stillHealthy := cred.MarkError(m.maxErrorCount, errMsg)
	m.schedulePersist(pt)
	if wasHealthy && !stillHealthy {
		m.logger.WithField("credential_id", cred.ID).Warnf("credential flipped unhealthy: %s", errMsg)
		recordHealthFlip(pt, "to_unhealthy")
		m.emitEvent("unhealthy", cred)
	}
}

// MarkProviderUnhealthyImmediately forces cred unhealthy regardless of the
// error window — used for 401-after-refresh-failure and 403 responses.
func (m *Manager) MarkProviderUnhealthyImmediately(pt ProviderType, cred *Credential, errMsg string) {
	if cred == nil {
		return
	}
	wasHealthy := cred.IsHealthy()
	cred.MarkImmediateUnhealthy(m.maxErrorCount, errMsg)
	m.schedulePersist(pt)
	if wasHealthy {
		m.logger.WithField("credential_id", cred.ID).Warnf("credential forced unhealthy: %s", errMsg)
		recordHealthFlip(pt, "to_unhealthy")
		m.emitEvent("unhealthy", cred)
	}
}

// MarkProviderHealthy clears error bookkeeping on cred and records the
// health-check stamp.
func (m *Manager) MarkProviderHealthy(pt ProviderType, cred *Credential, resetUsage bool, healthCheckModel string) {
	if cred == nil {
		return
	}
	wasHealthy := cred.IsHealthy()
	cred.MarkHealthy(resetUsage, healthCheckModel)
	m.schedulePersist(pt)
	if !wasHealthy {
		m.logger.WithField("credential_id", cred.ID).Info("credential recovered, marked healthy")
		recordHealthFlip(pt, "to_healthy")
		m.emitEvent("healthy", cred)
	}
}

// PerformHealthChecks sweeps every credential. Healthy ones are skipped —
// real traffic verifies them implicitly. Unhealthy ones are skipped again if
// their last error is newer than healthCheckBackoff (default 2m), otherwise
// the registered probe for their provider type runs a minimal call; success
// flips them healthy with resetUsage=true, failure re-applies the windowed
// unhealthy rule. isInit relaxes nothing by itself — it exists so callers can
// log the first sweep distinctly.
func (m *Manager) PerformHealthChecks(ctx context.Context, isInit bool) {
	m.mu.RLock()
	type target struct {
		pt   ProviderType
		cred *Credential
	}
	var targets []target
	for pt, list := range m.pools {
		for _, c := range list {
			targets = append(targets, target{pt: pt, cred: c})
		}
	}
	m.mu.RUnlock()

	for _, t := range targets {
		if t.cred.IsHealthy() {
			continue
		}
		if t.cred.IsDisabled() {
			continue
		}
		snap := t.cred.Snapshot()
		if !snap.LastHealthCheckTime.IsZero() || !snap.LastErrorTime.IsZero() {
			ref := snap.LastErrorTime
			if ref.IsZero() {
				ref = snap.LastHealthCheckTime
			}
			if time.Since(ref) < m.healthCheckBackoff {
				continue
			}
		}

		probe := m.healthProbe(t.pt)
		if probe == nil {
			continue
		}

		model := t.cred.CheckModelName
		err := probe(ctx, t.cred)
		if err != nil {
			m.MarkProviderUnhealthy(t.pt, t.cred, err.Error())
			continue
		}
		m.MarkProviderHealthy(t.pt, t.cred, true, model)
	}
}

// StartHealthScheduler runs PerformHealthChecks on a fixed tick until ctx is
// canceled or StopHealthScheduler is called, whichever comes first. Safe to
// call at most once per Manager; a second call is a no-op.
func (m *Manager) StartHealthScheduler(ctx context.Context, interval time.Duration) {
	m.healthSchedOnce.Do(func() {
		m.healthSchedStop = make(chan struct{})
		go m.healthSchedulerLoop(ctx, interval)
	})
}

func (m *Manager) healthSchedulerLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.PerformHealthChecks(ctx, true)
	for {
		select {
		case <-ticker.C:
			m.PerformHealthChecks(ctx, false)
		case <-ctx.Done():
			return
		case <-m.healthSchedStop:
			return
		}
	}
}

// StopHealthScheduler ends the background health-check loop started by
// StartHealthScheduler; safe to call even if the scheduler was never started,
// and safe to call more than once.
func (m *Manager) StopHealthScheduler() {
	if m.healthSchedStop == nil {
		return
	}
	m.healthSchedStopOnce.Do(func() { close(m.healthSchedStop) })
}
