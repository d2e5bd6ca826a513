package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMarkProviderUnhealthyFlipsAfterThreshold(t *testing.T) {
	cred := NewCredential("cred-1", GeminiOAuth)
	m := newTestManager(t, map[ProviderType][]*Credential{GeminiOAuth: {cred}})

	m.MarkProviderUnhealthy(GeminiOAuth, cred, "err1")
	require.True(t, cred.IsHealthy())
	m.MarkProviderUnhealthy(GeminiOAuth, cred, "err2")
	require.True(t, cred.IsHealthy())
	m.MarkProviderUnhealthy(GeminiOAuth, cred, "err3")
	require.False(t, cred.IsHealthy())
}

func TestMarkProviderUnhealthyImmediatelyForcesUnhealthy(t *testing.T) {
	cred := NewCredential("cred-1", GeminiOAuth)
	m := newTestManager(t, map[ProviderType][]*Credential{GeminiOAuth: {cred}})

	m.MarkProviderUnhealthyImmediately(GeminiOAuth, cred, "forbidden")
	require.False(t, cred.IsHealthy())
}

func TestMarkProviderHealthyClearsErrors(t *testing.T) {
	cred := NewCredential("cred-1", GeminiOAuth)
	m := newTestManager(t, map[ProviderType][]*Credential{GeminiOAuth: {cred}})

	m.MarkProviderUnhealthyImmediately(GeminiOAuth, cred, "forbidden")
	m.MarkProviderHealthy(GeminiOAuth, cred, true, "gemini-2.5-pro")
	require.True(t, cred.IsHealthy())
	require.Zero(t, cred.ErrorCount())
}

func TestPerformHealthChecksSkipsHealthyCredentials(t *testing.T) {
	cred := NewCredential("cred-1", GeminiOAuth)
	m := newTestManager(t, map[ProviderType][]*Credential{GeminiOAuth: {cred}})

	probed := false
	m.SetHealthProbe(GeminiOAuth, func(ctx context.Context, c *Credential) error {
		probed = true
		return nil
	})

	m.PerformHealthChecks(context.Background(), false)
	require.False(t, probed, "healthy credentials are verified by real traffic, not active probes")
}

func TestPerformHealthChecksRecoversUnhealthyCredential(t *testing.T) {
	cred := NewCredential("cred-1", GeminiOAuth)
	cred.MarkImmediateUnhealthy(3, "boom")
	cred.lastErrorTime = time.Now().Add(-time.Hour)

	m := newTestManager(t, map[ProviderType][]*Credential{GeminiOAuth: {cred}})
	m.SetHealthProbe(GeminiOAuth, func(ctx context.Context, c *Credential) error {
		return nil
	})

	m.PerformHealthChecks(context.Background(), false)
	require.True(t, cred.IsHealthy())
}

func TestPerformHealthChecksRespectsBackoff(t *testing.T) {
	cred := NewCredential("cred-1", GeminiOAuth)
	cred.MarkImmediateUnhealthy(3, "boom") // lastErrorTime is now, well within backoff

	m := newTestManager(t, map[ProviderType][]*Credential{GeminiOAuth: {cred}})
	probed := false
	m.SetHealthProbe(GeminiOAuth, func(ctx context.Context, c *Credential) error {
		probed = true
		return nil
	})

	m.PerformHealthChecks(context.Background(), false)
	require.False(t, probed, "a recently failed credential should not be re-probed inside the backoff window")
	require.False(t, cred.IsHealthy())
}

func TestPerformHealthChecksKeepsFailingCredentialUnhealthy(t *testing.T) {
	cred := NewCredential("cred-1", GeminiOAuth)
	cred.MarkImmediateUnhealthy(3, "boom")
	cred.lastErrorTime = time.Now().Add(-time.Hour)

	m := newTestManager(t, map[ProviderType][]*Credential{GeminiOAuth: {cred}})
	m.SetHealthProbe(GeminiOAuth, func(ctx context.Context, c *Credential) error {
		return errors.New("still broken")
	})

	m.PerformHealthChecks(context.Background(), false)
	require.False(t, cred.IsHealthy())
}

func TestStartHealthSchedulerRunsOnTick(t *testing.T) {
	cred := NewCredential("cred-1", GeminiOAuth)
	cred.MarkImmediateUnhealthy(3, "boom")
	cred.lastErrorTime = time.Now().Add(-time.Hour)

	m := newTestManager(t, map[ProviderType][]*Credential{GeminiOAuth: {cred}})
	probes := make(chan struct{}, 8)
	m.SetHealthProbe(GeminiOAuth, func(ctx context.Context, c *Credential) error {
		probes <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartHealthScheduler(ctx, 5*time.Millisecond)
	defer m.StopHealthScheduler()

	select {
	case <-probes:
	case <-time.After(time.Second):
		t.Fatal("expected the scheduler's initial sweep to probe the unhealthy credential")
	}
}

func TestStopHealthSchedulerIsSafeWithoutStart(t *testing.T) {
	m := newTestManager(t, map[ProviderType][]*Credential{GeminiOAuth: {}})
	m.StopHealthScheduler()
}

func TestIsAllProvidersUnhealthy(t *testing.T) {
	a := NewCredential("cred-a", GeminiOAuth)
	b := NewCredential("cred-b", GeminiOAuth)
	m := newTestManager(t, map[ProviderType][]*Credential{GeminiOAuth: {a, b}})

	require.False(t, m.IsAllProvidersUnhealthy(GeminiOAuth))

	m.MarkProviderUnhealthyImmediately(GeminiOAuth, a, "boom")
	m.MarkProviderUnhealthyImmediately(GeminiOAuth, b, "boom")
	require.True(t, m.IsAllProvidersUnhealthy(GeminiOAuth))
}
