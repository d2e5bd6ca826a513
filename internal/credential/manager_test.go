package credential

import (
	"context"
	"testing"

	"aigateway/internal/events"
	"github.com/stretchr/testify/require"
)

func TestLoadCredentialsGroupsByProviderType(t *testing.T) {
	m := newTestManager(t, map[ProviderType][]*Credential{
		GeminiOAuth:      {NewCredential("cred-a", GeminiOAuth)},
		OpenAICompatible: {NewCredential("cred-b", OpenAICompatible)},
	})

	require.Len(t, m.GetAllCredentials(GeminiOAuth), 1)
	require.Len(t, m.GetAllCredentials(OpenAICompatible), 1)
	require.Len(t, m.GetAllCredentials(""), 2)
}

func TestGetCredentialByID(t *testing.T) {
	m := newTestManager(t, map[ProviderType][]*Credential{
		GeminiOAuth: {NewCredential("cred-a", GeminiOAuth)},
	})

	cred, ok := m.GetCredentialByID("cred-a")
	require.True(t, ok)
	require.Equal(t, "cred-a", cred.ID)

	_, ok = m.GetCredentialByID("missing")
	require.False(t, ok)
}

func TestDisableAndEnableCredential(t *testing.T) {
	m := newTestManager(t, map[ProviderType][]*Credential{
		GeminiOAuth: {NewCredential("cred-a", GeminiOAuth)},
	})

	require.NoError(t, m.DisableCredential("cred-a"))
	cred, _ := m.GetCredentialByID("cred-a")
	require.True(t, cred.IsDisabled())
	require.False(t, cred.Selectable())

	require.NoError(t, m.EnableCredential("cred-a"))
	cred, _ = m.GetCredentialByID("cred-a")
	require.False(t, cred.IsDisabled())
}

func TestDisableCredentialUnknownIDErrors(t *testing.T) {
	m := newTestManager(t, map[ProviderType][]*Credential{
		GeminiOAuth: {NewCredential("cred-a", GeminiOAuth)},
	})
	require.Error(t, m.DisableCredential("missing"))
}

func TestResetProviderCounters(t *testing.T) {
	cred := NewCredential("cred-a", GeminiOAuth)
	cred.MarkError(3, "boom")
	m := newTestManager(t, map[ProviderType][]*Credential{GeminiOAuth: {cred}})

	m.ResetProviderCounters(GeminiOAuth)
	require.Zero(t, cred.ErrorCount())
}

func TestGetProviderStats(t *testing.T) {
	healthy := NewCredential("cred-healthy", GeminiOAuth)
	unhealthy := NewCredential("cred-unhealthy", GeminiOAuth)
	unhealthy.MarkImmediateUnhealthy(3, "boom")
	disabled := NewCredential("cred-disabled", GeminiOAuth)
	disabled.SetDisabled(true)

	m := newTestManager(t, map[ProviderType][]*Credential{
		GeminiOAuth: {healthy, unhealthy, disabled},
	})

	stats := m.GetProviderStats(GeminiOAuth)
	require.Equal(t, 3, stats.Total)
	require.Equal(t, 1, stats.Healthy)
	require.Equal(t, 1, stats.Unhealthy)
	require.Equal(t, 1, stats.Disabled)
}

func TestFallbackChainGetSet(t *testing.T) {
	m := newTestManager(t, map[ProviderType][]*Credential{GeminiOAuth: {}})
	m.SetFallbackChain(GeminiOAuth, []ProviderType{GeminiAntigravity})
	require.Equal(t, []ProviderType{GeminiAntigravity}, m.GetFallbackChain(GeminiOAuth))
}

func TestEmitEventOnDisable(t *testing.T) {
	hub := events.NewHub()
	var gotAction string
	hub.Subscribe(events.TopicCredentialChanged, func(ctx context.Context, e events.Event) {
		if payload, ok := e.Payload.(Event); ok {
			gotAction = payload.Action
		}
	})

	cred := NewCredential("cred-a", GeminiOAuth)
	m := newTestManager(t, map[ProviderType][]*Credential{GeminiOAuth: {cred}})
	m.SetEventPublisher(hub)

	require.NoError(t, m.DisableCredential("cred-a"))
	require.Equal(t, "disabled", gotAction)
}
