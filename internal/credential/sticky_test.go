package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStickyBindAndLookup(t *testing.T) {
	tbl := NewStickyTable(StickyOptions{TTL: time.Minute})
	defer tbl.Stop()

	tbl.Bind(GeminiOAuth, "session-1", "cred-a")
	credID, ok := tbl.Lookup(GeminiOAuth, "session-1")
	require.True(t, ok)
	require.Equal(t, "cred-a", credID)
}

func TestStickyLookupWrongProviderTypeMisses(t *testing.T) {
	tbl := NewStickyTable(StickyOptions{TTL: time.Minute})
	defer tbl.Stop()

	tbl.Bind(GeminiOAuth, "session-1", "cred-a")
	_, ok := tbl.Lookup(OpenAICompatible, "session-1")
	require.False(t, ok)
}

func TestStickyExpiresAfterTTL(t *testing.T) {
	tbl := NewStickyTable(StickyOptions{TTL: 5 * time.Millisecond})
	defer tbl.Stop()

	tbl.Bind(GeminiOAuth, "session-1", "cred-a")
	time.Sleep(15 * time.Millisecond)

	_, ok := tbl.Lookup(GeminiOAuth, "session-1")
	require.False(t, ok, "binding should expire after TTL")
}

func TestStickyBatchEvictionAtCapacity(t *testing.T) {
	tbl := NewStickyTable(StickyOptions{TTL: time.Minute, MaxSessions: 10})
	defer tbl.Stop()

	for i := 0; i < 10; i++ {
		tbl.Bind(GeminiOAuth, sessionName(i), "cred-a")
	}
	// Binding an 11th session should evict the oldest 10% (i.e. at least one).
	tbl.Bind(GeminiOAuth, "session-new", "cred-b")

	_, ok := tbl.Lookup(GeminiOAuth, sessionName(0))
	require.False(t, ok, "oldest session should have been evicted")

	_, ok = tbl.Lookup(GeminiOAuth, "session-new")
	require.True(t, ok)
}

func TestStickyDropRemovesBinding(t *testing.T) {
	tbl := NewStickyTable(StickyOptions{TTL: time.Minute})
	defer tbl.Stop()

	tbl.Bind(GeminiOAuth, "session-1", "cred-a")
	tbl.Drop("session-1")

	_, ok := tbl.Lookup(GeminiOAuth, "session-1")
	require.False(t, ok)
}

func sessionName(i int) string {
	return "session-" + string(rune('a'+i))
}
