package credential

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// memSource is an in-memory Source used by manager tests so they never touch
// the filesystem.
type memSource struct {
	name  string
	creds []*Credential
}

func (s *memSource) Name() string { return s.name }

func (s *memSource) Load(ctx context.Context) ([]*Credential, error) {
	out := make([]*Credential, len(s.creds))
	copy(out, s.creds)
	return out, nil
}

func newTestManager(t *testing.T, pools map[ProviderType][]*Credential) *Manager {
	t.Helper()
	sources := make(map[ProviderType][]Source, len(pools))
	for pt, creds := range pools {
		sources[pt] = []Source{&memSource{name: "mem", creds: creds}}
	}
	m := NewManager(Options{Sources: sources})
	require.NoError(t, m.LoadCredentials())
	t.Cleanup(m.Destroy)
	return m
}
