package kiro

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"aigateway/internal/credential"
	"aigateway/internal/oauth"
)

// DefaultRegion is substituted when a credential carries no region.
const DefaultRegion = "us-east-1"

// DefaultNearExpiryWindow is CRON_NEAR_MINUTES' documented default.
const DefaultNearExpiryWindow = 10 * time.Minute

// ensureFreshToken proactively refreshes cred's access token when it is
// within nearExpiry of expiring, persisting the result through source when
// one is configured.
func (a *Adapter) ensureFreshToken(ctx context.Context, cred *credential.Credential) error {
	if !cred.NearExpiry(a.nearExpiryWindow) {
		return nil
	}
	return a.refresh(ctx, cred)
}

func (a *Adapter) refresh(ctx context.Context, cred *credential.Credential) error {
	_, refreshToken, _ := cred.Token()
	if refreshToken == "" {
		return fmt.Errorf("kiro: credential %s has no refresh token", cred.ID)
	}

	region := cred.Region
	if region == "" {
		region = DefaultRegion
	}

	result, err := a.refresher.Refresh(ctx, oauth.KiroRefreshRequest{
		AuthMethod:   oauth.KiroAuthMethod(cred.AuthMethod),
		Region:       region,
		RefreshToken: refreshToken,
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
	})
	if err != nil {
		log.WithError(err).WithField("credential", cred.ID).Warn("kiro: token refresh failed")
		return err
	}

	cred.UpdateToken(result.AccessToken, result.RefreshToken, result.ExpiresAt, result.ProfileArn)
	if a.credentialSource != nil {
		if err := a.credentialSource.Save(ctx, cred); err != nil {
			log.WithError(err).WithField("credential", cred.ID).Warn("kiro: failed to persist refreshed token")
		}
	}
	log.WithField("credential", cred.ID).Info("kiro: refreshed access token")
	return nil
}
