package credential

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestFileStateStoreRoundTrip(t *testing.T) {
	store := &FileStateStore{Dir: t.TempDir()}
	cred := NewCredential("cred-a", GeminiOAuth)
	cred.MarkError(3, "boom")

	require.NoError(t, store.Persist(context.Background(), cred, cred.SnapshotState()))

	restored, err := store.Restore(context.Background(), NewCredential("cred-a", GeminiOAuth))
	require.NoError(t, err)
	require.NotNil(t, restored)
	require.Equal(t, cred.ErrorCount(), restored.ErrorCount)

	require.NoError(t, store.Delete(context.Background(), "cred-a"))
	after, err := store.Restore(context.Background(), NewCredential("cred-a", GeminiOAuth))
	require.NoError(t, err)
	require.Nil(t, after)
}

func TestFileStateStoreRestoreMissingReturnsNil(t *testing.T) {
	store := &FileStateStore{Dir: t.TempDir()}
	state, err := store.Restore(context.Background(), NewCredential("missing", GeminiOAuth))
	require.NoError(t, err)
	require.Nil(t, state)
}

func newTestRedisStore(t *testing.T) *RedisStateStore {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &RedisStateStore{Client: client, KeyPrefix: "test:cred-state:", TTL: time.Minute}
}

func TestRedisStateStoreRoundTrip(t *testing.T) {
	store := newTestRedisStore(t)
	cred := NewCredential("cred-a", GeminiOAuth)
	cred.MarkError(3, "boom")

	require.NoError(t, store.Persist(context.Background(), cred, cred.SnapshotState()))

	restored, err := store.Restore(context.Background(), NewCredential("cred-a", GeminiOAuth))
	require.NoError(t, err)
	require.NotNil(t, restored)
	require.Equal(t, cred.ErrorCount(), restored.ErrorCount)

	require.NoError(t, store.Delete(context.Background(), "cred-a"))
	after, err := store.Restore(context.Background(), NewCredential("cred-a", GeminiOAuth))
	require.NoError(t, err)
	require.Nil(t, after)
}

func TestRedisStateStoreRestoreMissingReturnsNil(t *testing.T) {
	store := newTestRedisStore(t)
	state, err := store.Restore(context.Background(), NewCredential("missing", GeminiOAuth))
	require.NoError(t, err)
	require.Nil(t, state)
}
