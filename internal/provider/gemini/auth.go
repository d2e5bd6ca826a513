package gemini

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"aigateway/internal/credential"
	"aigateway/internal/oauth"
)

// DefaultNearExpiryWindow matches the proactive-refresh lookahead every OAuth
// adapter in this gateway uses.
const DefaultNearExpiryWindow = 10 * time.Minute

// ensureFreshToken proactively refreshes cred's access token when it is
// within nearExpiry of expiring.
func (a *Adapter) ensureFreshToken(ctx context.Context, cred *credential.Credential) error {
	if !cred.NearExpiry(a.nearExpiryWindow) {
		return nil
	}
	return a.refresh(ctx, cred)
}

// refresh exchanges cred's refresh token for a new access token through the
// OAuth app registered on cred, persisting the result when a writable source
// is configured.
func (a *Adapter) refresh(ctx context.Context, cred *credential.Credential) error {
	accessToken, refreshToken, expiresAt := cred.Token()
	if refreshToken == "" {
		return fmt.Errorf("gemini: credential %s has no refresh token", cred.ID)
	}

	manager := a.managerFor(cred)
	creds := &oauth.Credentials{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ProjectID:    cred.ProjectID,
		ExpiresAt:    expiresAt,
	}

	if err := manager.RefreshToken(ctx, creds); err != nil {
		log.WithError(err).WithField("credential", cred.ID).Warn("gemini: token refresh failed")
		return err
	}

	cred.UpdateToken(creds.AccessToken, creds.RefreshToken, creds.ExpiresAt, "")
	if a.credentialSource != nil {
		if err := a.credentialSource.Save(ctx, cred); err != nil {
			log.WithError(err).WithField("credential", cred.ID).Warn("gemini: failed to persist refreshed token")
		}
	}
	log.WithField("credential", cred.ID).Info("gemini: refreshed access token")
	return nil
}

// managerFor returns the shared Manager when one was injected, or builds one
// scoped to cred's own OAuth app when credentials vary per account.
func (a *Adapter) managerFor(cred *credential.Credential) *oauth.Manager {
	if a.oauthManager != nil {
		return a.oauthManager
	}
	return oauth.NewManager(cred.ClientID, cred.ClientSecret, "")
}
