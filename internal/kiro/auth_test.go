package kiro

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

func newRefreshServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"accessToken":  "new-access-token",
			"refreshToken": "new-refresh-token",
			"expiresIn":    3600,
			"profileArn":   "arn:aws:codewhisperer:us-east-1:1234:profile/abc",
		})
	}))
}

func newTestCredential(expiresAt time.Time) *credential.Credential {
	cred := credential.NewCredential("cred-1", credential.ClaudeKiroOAuth)
	cred.UpdateToken("old-access-token", "old-refresh-token", expiresAt, "")
	return cred
}

func TestEnsureFreshTokenSkipsWhenFarFromExpiry(t *testing.T) {
	server := newRefreshServer(t)
	defer server.Close()
	called := false
	server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	refresher := oauth.NewKiroRefresher(oauth.WithKiroSocialURLTemplate(server.URL + "/%s"))
	a := NewAdapter(WithRefresher(refresher))
	cred := newTestCredential(time.Now().Add(time.Hour))

	err := a.ensureFreshToken(context.Background(), cred)
	require.NoError(t, err)
	require.False(t, called, "expected no refresh call when token is not near expiry")
}

func TestEnsureFreshTokenRefreshesWhenNearExpiry(t *testing.T) {
	server := newRefreshServer(t)
	defer server.Close()

	refresher := oauth.NewKiroRefresher(oauth.WithKiroSocialURLTemplate(server.URL + "/%s"))
	a := NewAdapter(WithRefresher(refresher))
	cred := newTestCredential(time.Now().Add(time.Minute))

	err := a.ensureFreshToken(context.Background(), cred)
	require.NoError(t, err)

	accessToken, refreshToken, _ := cred.Token()
	require.Equal(t, "new-access-token", accessToken)
	require.Equal(t, "new-refresh-token", refreshToken)
	require.Equal(t, "arn:aws:codewhisperer:us-east-1:1234:profile/abc", cred.ProfileArn)
}

func TestRefreshPersistsThroughCredentialSource(t *testing.T) {
	server := newRefreshServer(t)
	defer server.Close()

	refresher := oauth.NewKiroRefresher(oauth.WithKiroSocialURLTemplate(server.URL + "/%s"))
	saved := make(chan *credential.Credential, 1)
	a := NewAdapter(WithRefresher(refresher), WithCredentialSource(stubWritableSource{saved: saved}))
	cred := newTestCredential(time.Now().Add(-time.Minute))

	err := a.refresh(context.Background(), cred)
	require.NoError(t, err)

	select {
	case savedCred := <-saved:
		require.Equal(t, cred.ID, savedCred.ID)
	default:
		t.Fatal("expected refreshed credential to be persisted")
	}
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
