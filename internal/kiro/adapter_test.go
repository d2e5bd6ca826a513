package kiro

import (
	"testing"

	"github.com/stretchr/testify/require"

	"aigateway/internal/credential"
)

func TestAdapterName(t *testing.T) {
	a := NewAdapter()
	require.Equal(t, credential.ClaudeKiroOAuth, a.Name())
}

func TestAdapterSupportsModel(t *testing.T) {
	a := NewAdapter()
	require.True(t, a.SupportsModel("claude-opus-4-5"))
	require.True(t, a.SupportsModel("AmazonQ-developer"))
	require.False(t, a.SupportsModel("gpt-4o"))
}

func TestAdapterInvalidateDropsCachedClient(t *testing.T) {
	a := NewAdapter()
	cred := credential.NewCredential("cred-1", credential.ClaudeKiroOAuth)

	client1, err := a.clientFor(cred)
	require.NoError(t, err)

	a.Invalidate(cred.ID)

	client2, err := a.clientFor(cred)
	require.NoError(t, err)
	require.NotSame(t, client1, client2)
}

func TestAdapterClientForReusesCachedClient(t *testing.T) {
	a := NewAdapter()
	cred := credential.NewCredential("cred-1", credential.ClaudeKiroOAuth)

	client1, err := a.clientFor(cred)
	require.NoError(t, err)
	client2, err := a.clientFor(cred)
	require.NoError(t, err)
	require.Same(t, client1, client2)
}

func TestChatURLRoutesAmazonQToCodeWhisperer(t *testing.T) {
	require.Contains(t, chatURL("us-east-1", "amazonq-developer"), "codewhisperer.us-east-1.amazonaws.com")
	require.Contains(t, chatURL("us-east-1", "claude-opus-4-5"), "q.us-east-1.amazonaws.com")
}
