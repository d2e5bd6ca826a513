package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSameProtocolFamilies(t *testing.T) {
	require.True(t, SameProtocol(GeminiOAuth, GeminiAntigravity))
	require.True(t, SameProtocol(OpenAICompatible, OpenAIResponses))
	require.True(t, SameProtocol(ClaudeDirect, ClaudeKiroOAuth))
	require.False(t, SameProtocol(GeminiOAuth, OpenAICompatible))
	require.False(t, SameProtocol(QwenOAuth, ClaudeDirect))
}

func TestNewCredentialStartsHealthy(t *testing.T) {
	c := NewCredential("cred-1", GeminiOAuth)
	require.True(t, c.IsHealthy())
	require.False(t, c.IsDisabled())
	require.True(t, c.Selectable())
	require.Zero(t, c.UsageCount())
	require.Zero(t, c.ErrorCount())
}

func TestMarkErrorWindowedCounting(t *testing.T) {
	c := NewCredential("cred-1", GeminiOAuth)
	require.True(t, c.MarkError(3, "boom"))
	require.Equal(t, 1, c.ErrorCount())
	require.True(t, c.MarkError(3, "boom"))
	require.Equal(t, 2, c.ErrorCount())
	require.False(t, c.MarkError(3, "boom"))
	require.Equal(t, 3, c.ErrorCount())
	require.False(t, c.IsHealthy())
}

func TestMarkErrorResetsOutsideWindow(t *testing.T) {
	c := NewCredential("cred-1", GeminiOAuth)
	c.MarkError(3, "first")
	c.mu.Lock()
	c.lastErrorTime = time.Now().Add(-2 * ErrorWindow)
	c.mu.Unlock()
	c.MarkError(3, "second")
	require.Equal(t, 1, c.ErrorCount())
}

func TestMarkImmediateUnhealthyBypassesWindow(t *testing.T) {
	c := NewCredential("cred-1", GeminiOAuth)
	c.MarkImmediateUnhealthy(3, "forbidden")
	require.False(t, c.IsHealthy())
	require.Equal(t, 3, c.ErrorCount())
	require.Equal(t, "forbidden", c.LastErrorMessage())
}

func TestMarkHealthyClearsErrorsAndOptionallyResetsUsage(t *testing.T) {
	c := NewCredential("cred-1", GeminiOAuth)
	c.MarkImmediateUnhealthy(3, "boom")
	c.TouchUsage()
	c.TouchUsage()

	c.MarkHealthy(true, "gemini-2.5-pro")
	require.True(t, c.IsHealthy())
	require.Zero(t, c.ErrorCount())
	require.Zero(t, c.UsageCount())
	require.Equal(t, "gemini-2.5-pro", c.LastHealthCheckModel())
}

func TestSupportsModelRespectsBlocklist(t *testing.T) {
	c := NewCredential("cred-1", GeminiOAuth)
	require.True(t, c.SupportsModel("gemini-2.5-pro"))
	c.NotSupportedModels["gemini-2.5-flash"] = struct{}{}
	require.False(t, c.SupportsModel("gemini-2.5-flash"))
	require.True(t, c.SupportsModel(""))
}

func TestIsExpiredAndNearExpiry(t *testing.T) {
	c := NewCredential("cred-1", GeminiOAuth)
	require.True(t, c.NearExpiry(time.Minute), "zero expiry should be treated as imminent")

	c.ExpiresAt = time.Now().Add(-time.Minute)
	require.True(t, c.IsExpired())

	c.ExpiresAt = time.Now().Add(time.Hour)
	require.False(t, c.IsExpired())
	require.False(t, c.NearExpiry(time.Minute))
	require.True(t, c.NearExpiry(2*time.Hour))
}

func TestCloneIsIndependentCopy(t *testing.T) {
	c := NewCredential("cred-1", GeminiOAuth)
	c.AccessToken = "secret"
	c.NotSupportedModels["x"] = struct{}{}

	clone := c.Clone()
	clone.AccessToken = "different"
	clone.NotSupportedModels["y"] = struct{}{}

	require.Equal(t, "secret", c.AccessToken)
	require.NotContains(t, c.NotSupportedModels, "y")
}

func TestUpdateTokenAppliesAndPreservesOmittedFields(t *testing.T) {
	c := NewCredential("cred-1", ClaudeKiroOAuth)
	c.RefreshToken = "rt-original"
	future := time.Now().Add(time.Hour)
	c.ExpiresAt = future

	c.UpdateToken("at-new", "", time.Time{}, "")
	at, rt, exp := c.Token()
	require.Equal(t, "at-new", at)
	require.Equal(t, "rt-original", rt, "empty refresh token should not overwrite the existing one")
	require.True(t, exp.Equal(future), "zero expiry should not overwrite the existing one")

	c.UpdateToken("at-newer", "rt-newer", future.Add(time.Hour), "arn:aws:profile")
	at, rt, exp = c.Token()
	require.Equal(t, "at-newer", at)
	require.Equal(t, "rt-newer", rt)
	require.True(t, exp.Equal(future.Add(time.Hour)))
	require.Equal(t, "arn:aws:profile", c.ProfileArn)
}

func TestSnapshotStateRoundTrip(t *testing.T) {
	c := NewCredential("cred-1", GeminiOAuth)
	c.TouchUsage()
	c.MarkError(3, "oops")
	state := c.SnapshotState()

	restored := NewCredential("cred-1", GeminiOAuth)
	restored.RestoreState(state)
	require.Equal(t, c.ErrorCount(), restored.ErrorCount())
	require.Equal(t, c.UsageCount(), restored.UsageCount())
	require.Equal(t, c.IsHealthy(), restored.IsHealthy())
}
