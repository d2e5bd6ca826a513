package credential

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"aigateway/internal/monitoring/tracing"
)

// SelectOptions carries the optional knobs selectProvider accepts.
type SelectOptions struct {
	SessionID      string
	SkipUsageCount bool
	IsFromFallback bool
}

// SelectProvider picks one credential for providerType, preferring a sticky
// binding when a session id is given, otherwise the least-recently-used
// healthy, non-disabled, model-capable credential.
func (m *Manager) SelectProvider(ctx context.Context, pt ProviderType, model string, opts SelectOptions) (*Credential, error) {
	_, span := tracing.StartSpan(ctx, "credential", "pool.select")
	defer span.End()
	span.SetAttributes(
		attribute.String("providerType", string(pt)),
		attribute.String("model", model),
		attribute.Bool("is_fallback", opts.IsFromFallback),
	)

	if pt == "" {
		return nil, fmt.Errorf("credential: provider type is required")
	}

	if opts.SessionID != "" {
		if cred, ok := m.stickyLookup(pt, model, opts.SessionID); ok {
			if !opts.SkipUsageCount {
				cred.TouchUsage()
				m.schedulePersist(pt)
			}
			span.SetAttributes(attribute.Bool("sticky_hit", true))
			recordSelectionOutcome(pt, OutcomeStickyHit)
			return cred, nil
		}
	}
	span.SetAttributes(attribute.Bool("sticky_hit", false))

	m.mu.RLock()
	pool := m.pools[pt]
	candidates := make([]*Credential, 0, len(pool))
	for _, c := range pool {
		if !c.Selectable() {
			continue
		}
		if !c.SupportsModel(model) {
			continue
		}
		candidates = append(candidates, c)
	}
	m.mu.RUnlock()

	if len(candidates) == 0 {
		recordSelectionOutcome(pt, OutcomeExhausted)
		return nil, fmt.Errorf("credential: no eligible credential for %s", pt)
	}

	sort.Slice(candidates, func(i, j int) bool {
		li, lj := candidates[i].LastUsed(), candidates[j].LastUsed()
		if !li.Equal(lj) {
			return li.Before(lj)
		}
		return candidates[i].UsageCount() < candidates[j].UsageCount()
	})
	chosen := candidates[0]

	if opts.SessionID != "" && !opts.IsFromFallback {
		m.stickyBind(pt, opts.SessionID, chosen.ID)
	}
	if !opts.SkipUsageCount {
		chosen.TouchUsage()
		m.schedulePersist(pt)
	}
	recordSelectionOutcome(pt, OutcomeLRUHit)
	return chosen, nil
}

// FallbackResult is the outcome of selectProviderWithFallback.
type FallbackResult struct {
	Credential   *Credential
	ProviderType ProviderType
	IsFallback   bool
	ActualModel  string // set only when tier 2 (model mapping) substituted a model
}

// SelectProviderWithFallback runs the two-tier cascade: same-protocol chain
// first, then a cross-protocol model-fallback mapping.
func (m *Manager) SelectProviderWithFallback(ctx context.Context, pt ProviderType, model string, opts SelectOptions) (*FallbackResult, error) {
	ctx, span := tracing.StartSpan(ctx, "credential", "pool.select")
	defer span.End()
	span.SetAttributes(
		attribute.String("providerType", string(pt)),
		attribute.String("model", model),
	)

	tried := map[ProviderType]struct{}{}

	candidates := append([]ProviderType{pt}, m.GetFallbackChain(pt)...)
	for i, candidate := range candidates {
		if _, done := tried[candidate]; done {
			continue
		}
		tried[candidate] = struct{}{}

		isFallback := i > 0
		if isFallback {
			if !SameProtocol(pt, candidate) {
				continue
			}
			if !m.providerSupportsModel(candidate, model) {
				continue
			}
		}

		selOpts := opts
		selOpts.IsFromFallback = isFallback
		cred, err := m.SelectProvider(ctx, candidate, model, selOpts)
		if err == nil {
			span.SetAttributes(attribute.Bool("is_fallback", isFallback))
			if isFallback {
				recordSelectionOutcome(pt, OutcomeFallbackChain)
			}
			return &FallbackResult{Credential: cred, ProviderType: candidate, IsFallback: isFallback}, nil
		}
	}

	m.mu.RLock()
	target, hasMapping := m.modelFallback[model]
	m.mu.RUnlock()
	if !hasMapping {
		recordSelectionOutcome(pt, OutcomeExhausted)
		return nil, fmt.Errorf("credential: %s exhausted for model %s, no fallback available", pt, model)
	}

	mappedCandidates := append([]ProviderType{target.TargetProviderType}, m.GetFallbackChain(target.TargetProviderType)...)
	for i, candidate := range mappedCandidates {
		isFallback := true
		if i > 0 && !SameProtocol(target.TargetProviderType, candidate) {
			continue
		}
		selOpts := opts
		selOpts.IsFromFallback = isFallback
		cred, err := m.SelectProvider(ctx, candidate, target.TargetModel, selOpts)
		if err == nil {
			span.SetAttributes(attribute.Bool("is_fallback", true))
			recordSelectionOutcome(pt, OutcomeFallbackModel)
			return &FallbackResult{
				Credential:   cred,
				ProviderType: candidate,
				IsFallback:   true,
				ActualModel:  target.TargetModel,
			}, nil
		}
	}

	recordSelectionOutcome(pt, OutcomeExhausted)
	return nil, fmt.Errorf("credential: %s exhausted for model %s, model-mapped fallback also exhausted", pt, model)
}

// providerSupportsModel reports whether any credential of pt could serve
// model, independent of current health — used only to decide whether a
// fallback chain hop is worth attempting at all.
func (m *Manager) providerSupportsModel(pt ProviderType, model string) bool {
	if model == "" {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.pools[pt] {
		if c.SupportsModel(model) {
			return true
		}
	}
	return false
}
