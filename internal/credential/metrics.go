package credential

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Selection outcome labels for poolSelectionsTotal.
const (
	OutcomeStickyHit     = "hit_sticky"
	OutcomeLRUHit        = "hit_lru"
	OutcomeFallbackChain = "fallback_chain"
	OutcomeFallbackModel = "fallback_model"
	OutcomeExhausted     = "exhausted"
)

var (
	poolSelectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aigateway_pool_selections_total",
		Help: "Provider pool selections by provider type and outcome.",
	}, []string{"provider_type", "outcome"})

	poolHealthFlipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aigateway_pool_health_flips_total",
		Help: "Credential health transitions by provider type and direction.",
	}, []string{"provider_type", "direction"})

	poolCredentialsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aigateway_pool_credentials",
		Help: "Current credential count by provider type and health state.",
	}, []string{"provider_type", "state"})

	stickySessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aigateway_sticky_sessions",
		Help: "Current number of bound sticky sessions.",
	})
)

func recordSelectionOutcome(pt ProviderType, outcome string) {
	poolSelectionsTotal.WithLabelValues(string(pt), outcome).Inc()
}

func recordHealthFlip(pt ProviderType, direction string) {
	poolHealthFlipsTotal.WithLabelValues(string(pt), direction).Inc()
}

// RefreshGauges recomputes the credential-count gauges for every provider
// type the manager currently tracks; callers run this on a timer or after
// bulk mutations (load, health-check sweep).
func (m *Manager) RefreshGauges() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for pt, list := range m.pools {
		var healthy, unhealthy, disabled int
		for _, c := range list {
			snap := c.Snapshot()
			switch {
			case snap.IsDisabled:
				disabled++
			case snap.IsHealthy:
				healthy++
			default:
				unhealthy++
			}
		}
		poolCredentialsGauge.WithLabelValues(string(pt), "healthy").Set(float64(healthy))
		poolCredentialsGauge.WithLabelValues(string(pt), "unhealthy").Set(float64(unhealthy))
		poolCredentialsGauge.WithLabelValues(string(pt), "disabled").Set(float64(disabled))
	}
}
