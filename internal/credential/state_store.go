package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"aigateway/internal/filelock"
)

const credentialStateSuffix = ".state.json"

// StateStore abstracts persistence of per-credential runtime health state
// (isHealthy/isDisabled/errorCount/...), separately from the pool file the
// Debounced Persistor owns. The default is file-based; RedisStateStore is an
// optional pluggable backend for deployments that already run Redis.
type StateStore interface {
	Persist(ctx context.Context, cred *Credential, state *CredentialState) error
	Restore(ctx context.Context, cred *Credential) (*CredentialState, error)
	Delete(ctx context.Context, credID string) error
}

// FileStateStore is a directory-based StateStore, atomic and lock-guarded via
// internal/filelock, matching the primary credential file's write contract.
type FileStateStore struct{ Dir string }

func (f *FileStateStore) path(id string) string {
	if f == nil || f.Dir == "" || id == "" {
		return ""
	}
	base := strings.TrimSuffix(id, filepath.Ext(id))
	return filepath.Join(f.Dir, base+credentialStateSuffix)
}

func (f *FileStateStore) Persist(_ context.Context, cred *Credential, state *CredentialState) error {
	if cred == nil || state == nil {
		return nil
	}
	p := f.path(cred.ID)
	if p == "" {
		return nil
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return filelock.WithExclusive(p, func() error {
		return filelock.WriteAtomic(p, data, 0o600)
	})
}

func (f *FileStateStore) Restore(_ context.Context, cred *Credential) (*CredentialState, error) {
	if cred == nil {
		return nil, nil
	}
	p := f.path(cred.ID)
	if p == "" {
		return nil, nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var st CredentialState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (f *FileStateStore) Delete(_ context.Context, credID string) error {
	p := f.path(credID)
	return removeIfExists(p)
}

func removeIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RedisStateStore implements StateStore against a Redis (or miniredis, in
// tests) instance, for deployments that want a store shared across processes
// rather than best-effort local files.
type RedisStateStore struct {
	Client    *redis.Client
	KeyPrefix string
	TTL       time.Duration
}

func (r *RedisStateStore) key(id string) string {
	prefix := r.KeyPrefix
	if prefix == "" {
		prefix = "aigateway:cred-state:"
	}
	return prefix + id
}

func (r *RedisStateStore) Persist(ctx context.Context, cred *Credential, state *CredentialState) error {
	if cred == nil || state == nil {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state for redis: %w", err)
	}
	return r.Client.Set(ctx, r.key(cred.ID), data, r.TTL).Err()
}

func (r *RedisStateStore) Restore(ctx context.Context, cred *Credential) (*CredentialState, error) {
	if cred == nil {
		return nil, nil
	}
	data, err := r.Client.Get(ctx, r.key(cred.ID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("read state from redis: %w", err)
	}
	var st CredentialState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal state from redis: %w", err)
	}
	return &st, nil
}

func (r *RedisStateStore) Delete(ctx context.Context, credID string) error {
	return r.Client.Del(ctx, r.key(credID)).Err()
}
