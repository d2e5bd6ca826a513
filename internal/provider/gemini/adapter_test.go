package gemini

import (
	"testing"

	"github.com/stretchr/testify/require"

	"aigateway/internal/credential"
)

func TestNameReportsGeminiOAuth(t *testing.T) {
	a := NewAdapter()
	require.Equal(t, credential.GeminiOAuth, a.Name())
}

func TestSupportsModel(t *testing.T) {
	a := NewAdapter()
	require.True(t, a.SupportsModel("gemini-2.5-pro"))
	require.True(t, a.SupportsModel("gemini-2.5-flash-nothinking"))
	require.True(t, a.SupportsModel("nano-banana"))
	require.False(t, a.SupportsModel("claude-opus-4-5"))
}

func TestInvalidateDropsCachedClient(t *testing.T) {
	a := NewAdapter()
	cred := credential.NewCredential("cred-1", credential.GeminiOAuth)
	_, err := a.clientFor(cred)
	require.NoError(t, err)
	require.Contains(t, a.credClients, "cred-1")

	a.Invalidate("cred-1")
	require.NotContains(t, a.credClients, "cred-1")
}
