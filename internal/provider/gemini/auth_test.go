package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aigateway/internal/credential"
	"aigateway/internal/oauth"
)

func newGeminiRefreshServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access-token",
			"refresh_token": "new-refresh-token",
			"expires_in":    3600,
		})
	}))
}

func newGeminiTestCredential(expiresAt time.Time) *credential.Credential {
	cred := credential.NewCredential("cred-1", credential.GeminiOAuth)
	cred.ClientID = "client-id"
	cred.ClientSecret = "client-secret"
	cred.ProjectID = "proj-1"
	cred.UpdateToken("old-access-token", "old-refresh-token", expiresAt, "")
	return cred
}

func TestEnsureFreshTokenSkipsWhenFarFromExpiry(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	manager := oauth.NewManager("client-id", "client-secret", "", oauth.WithTokenURL(server.URL))
	a := NewAdapter(WithOAuthManager(manager))
	cred := newGeminiTestCredential(time.Now().Add(time.Hour))

	err := a.ensureFreshToken(context.Background(), cred)
	require.NoError(t, err)
	require.False(t, called, "expected no refresh call when token is not near expiry")
}

func TestEnsureFreshTokenRefreshesWhenNearExpiry(t *testing.T) {
	server := newGeminiRefreshServer(t)
	defer server.Close()

	manager := oauth.NewManager("client-id", "client-secret", "", oauth.WithTokenURL(server.URL))
	a := NewAdapter(WithOAuthManager(manager))
	cred := newGeminiTestCredential(time.Now().Add(time.Minute))

	err := a.ensureFreshToken(context.Background(), cred)
	require.NoError(t, err)

	accessToken, refreshToken, _ := cred.Token()
	require.Equal(t, "new-access-token", accessToken)
	require.Equal(t, "new-refresh-token", refreshToken)
}

func TestRefreshPersistsThroughCredentialSource(t *testing.T) {
	server := newGeminiRefreshServer(t)
	defer server.Close()

	manager := oauth.NewManager("client-id", "client-secret", "", oauth.WithTokenURL(server.URL))
	saved := make(chan *credential.Credential, 1)
	a := NewAdapter(WithOAuthManager(manager), WithCredentialSource(stubWritableSource{saved: saved}))
	cred := newGeminiTestCredential(time.Now().Add(-time.Minute))

	err := a.refresh(context.Background(), cred)
	require.NoError(t, err)

	select {
	case savedCred := <-saved:
		require.Equal(t, cred.ID, savedCred.ID)
	default:
		t.Fatal("expected refreshed credential to be persisted")
	}
}

func TestRefreshFailsWithoutRefreshToken(t *testing.T) {
	a := NewAdapter()
	cred := credential.NewCredential("cred-2", credential.GeminiOAuth)
	err := a.refresh(context.Background(), cred)
	require.Error(t, err)
}

func TestManagerForBuildsPerCredentialManagerWhenNoneInjected(t *testing.T) {
	a := NewAdapter()
	cred := newGeminiTestCredential(time.Now().Add(time.Hour))
	m := a.managerFor(cred)
	require.NotNil(t, m)
}

type stubWritableSource struct {
	saved chan *credential.Credential
}

func (s stubWritableSource) Name() string { return "stub" }

func (s stubWritableSource) Load(ctx context.Context) ([]*credential.Credential, error) {
	return nil, nil
}

func (s stubWritableSource) Save(ctx context.Context, cred *credential.Credential) error {
	s.saved <- cred
	return nil
}

func (s stubWritableSource) Delete(ctx context.Context, id string) error {
	return nil
}
