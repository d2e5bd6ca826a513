package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"aigateway/internal/filelock"
)

// credentialFile is the on-disk shape described by the external-interfaces
// contract: accessToken/refreshToken/expiresAt are required, the rest
// optional depending on provider type and auth method.
type credentialFile struct {
	ProviderType string    `json:"providerType,omitempty"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	ClientID     string    `json:"clientId,omitempty"`
	ClientSecret string    `json:"clientSecret,omitempty"`
	AuthMethod   string    `json:"authMethod,omitempty"`
	ProfileArn   string    `json:"profileArn,omitempty"`
	Region       string    `json:"region,omitempty"`
	ProjectID    string    `json:"projectId,omitempty"`
	CustomName   string    `json:"customName,omitempty"`
}

// FileSource is the default Source: one directory holding a credential file
// plus any sibling JSON files to merge in (split client-id/refresh-token
// layouts). Reads and writes are guarded by an advisory lock per file so
// concurrent refreshes across processes never observe a torn file.
type FileSource struct {
	dir  string
	name string
}

// NewFileSource builds a FileSource rooted at dir. dir should already be an
// absolute path with any `~` expansion done by the caller.
func NewFileSource(dir string) *FileSource {
	clean := filepath.Clean(dir)
	return &FileSource{dir: clean, name: "file:" + clean}
}

func (s *FileSource) Dir() string  { return s.dir }
func (s *FileSource) Name() string { return s.name }

// Load reads every non-state `.json` file in the directory whose name does
// not contain `.extra.` as one credential. Into each it merges fields from
// every other non-state JSON file in the same directory (not only a matching
// `<id>.extra.json`); unreadable or unparsable siblings are skipped. Each
// resulting credential's ExpiresAt always comes from the primary file, never
// a sibling.
func (s *FileSource) Load(_ context.Context) ([]*Credential, error) {
	if s.dir == "" {
		return nil, fmt.Errorf("file source directory not configured")
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credential directory: %w", err)
	}

	var creds []*Credential
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) != ".json" {
			continue
		}
		lower := strings.ToLower(name)
		if strings.HasSuffix(lower, credentialStateSuffix) || strings.Contains(lower, ".extra.") {
			continue
		}
		cred, err := s.loadOne(filepath.Join(s.dir, name), strings.TrimSuffix(name, ".json"))
		if err != nil {
			log.WithError(err).Warnf("credential file source: failed to load %s", name)
			continue
		}
		if cred != nil {
			creds = append(creds, cred)
		}
	}
	return creds, nil
}

func (s *FileSource) loadOne(path, id string) (*Credential, error) {
	lock, err := filelock.Acquire(path, false)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	data, err := io.ReadAll(lock.File())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var cf credentialFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Merge sibling JSON files (split client-id / refresh-token layouts).
	// Sibling keys win except expiresAt, which must come from the primary file.
	siblingGlob := filepath.Join(s.dir, "*.json")
	matches, _ := filepath.Glob(siblingGlob)
	for _, m := range matches {
		base := filepath.Base(m)
		if base == id+".json" {
			continue
		}
		lowerBase := strings.ToLower(base)
		if strings.HasSuffix(lowerBase, credentialStateSuffix) {
			continue
		}
		siblingData, err := os.ReadFile(m)
		if err != nil {
			continue
		}
		var sibling map[string]any
		if err := json.Unmarshal(siblingData, &sibling); err != nil {
			continue
		}
		mergeSiblingFields(&cf, sibling)
	}

	pt := ProviderType(cf.ProviderType)
	if pt == "" {
		pt = ClaudeKiroOAuth
	}
	cred := NewCredential(id, pt)
	cred.AccessToken = cf.AccessToken
	cred.RefreshToken = cf.RefreshToken
	cred.ExpiresAt = cf.ExpiresAt
	cred.ClientID = cf.ClientID
	cred.ClientSecret = cf.ClientSecret
	cred.AuthMethod = cf.AuthMethod
	cred.ProfileArn = cf.ProfileArn
	cred.Region = cf.Region
	cred.ProjectID = cf.ProjectID
	cred.CustomName = cf.CustomName
	if cred.Region == "" {
		cred.Region = "us-east-1"
	}
	cred.Source = s.Name()
	return cred, nil
}

func mergeSiblingFields(cf *credentialFile, sibling map[string]any) {
	if v, ok := sibling["clientId"].(string); ok && cf.ClientID == "" {
		cf.ClientID = v
	}
	if v, ok := sibling["clientSecret"].(string); ok && cf.ClientSecret == "" {
		cf.ClientSecret = v
	}
	if v, ok := sibling["refreshToken"].(string); ok && cf.RefreshToken == "" {
		cf.RefreshToken = v
	}
	if v, ok := sibling["authMethod"].(string); ok && cf.AuthMethod == "" {
		cf.AuthMethod = v
	}
	if v, ok := sibling["profileArn"].(string); ok && cf.ProfileArn == "" {
		cf.ProfileArn = v
	}
	if v, ok := sibling["region"].(string); ok && cf.Region == "" {
		cf.Region = v
	}
	if v, ok := sibling["projectId"].(string); ok && cf.ProjectID == "" {
		cf.ProjectID = v
	}
}

// Save writes a credential's secrets back to its primary file, atomically
// and under an exclusive advisory lock.
func (s *FileSource) Save(_ context.Context, cred *Credential) error {
	if s.dir == "" {
		return fmt.Errorf("file source directory not configured")
	}
	if cred == nil || cred.ID == "" {
		return fmt.Errorf("credential id is required")
	}
	path := filepath.Join(s.dir, ensureJSONExtension(cred.ID))
	cf := credentialFile{
		ProviderType: string(cred.ProviderType),
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		ExpiresAt:    cred.ExpiresAt,
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		AuthMethod:   cred.AuthMethod,
		ProfileArn:   cred.ProfileArn,
		Region:       cred.Region,
		ProjectID:    cred.ProjectID,
		CustomName:   cred.CustomName,
	}
	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credential %s: %w", cred.ID, err)
	}
	return filelock.WithExclusive(path, func() error {
		return filelock.WriteAtomic(path, data, 0o600)
	})
}

func (s *FileSource) Delete(_ context.Context, id string) error {
	if s.dir == "" {
		return fmt.Errorf("file source directory not configured")
	}
	if id == "" {
		return fmt.Errorf("credential id is required")
	}
	path := filepath.Join(s.dir, ensureJSONExtension(id))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete credential %s: %w", id, err)
	}
	return nil
}

// RestoreState loads persisted runtime health state from the credential's
// `.state.json` sibling, if present.
func (s *FileSource) RestoreState(_ context.Context, cred *Credential) error {
	if cred == nil {
		return nil
	}
	path := s.statePath(cred.ID)
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read state file: %w", err)
	}
	var state CredentialState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("parse state file: %w", err)
	}
	cred.RestoreState(&state)
	return nil
}

// PersistState writes runtime health state to the `.state.json` sibling,
// atomically.
func (s *FileSource) PersistState(_ context.Context, cred *Credential, state *CredentialState) error {
	if cred == nil || state == nil {
		return nil
	}
	path := s.statePath(cred.ID)
	if path == "" {
		return fmt.Errorf("state path unavailable")
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return filelock.WithExclusive(path, func() error {
		return filelock.WriteAtomic(path, data, 0o600)
	})
}

func (s *FileSource) DeleteState(_ context.Context, id string) error {
	path := s.statePath(id)
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

func (s *FileSource) statePath(id string) string {
	if s.dir == "" || id == "" {
		return ""
	}
	base := strings.TrimSuffix(id, filepath.Ext(id))
	return filepath.Join(s.dir, base+credentialStateSuffix)
}

func ensureJSONExtension(id string) string {
	if filepath.Ext(id) != "" {
		return id
	}
	return id + ".json"
}
