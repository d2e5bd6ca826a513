package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultKiroSocialURLTemplate is the social (device/desktop) refresh
	// endpoint; %s is the region.
	DefaultKiroSocialURLTemplate = "https://prod.%s.auth.desktop.kiro.dev/refreshToken"
	// DefaultKiroIDCURLTemplate is the AWS SSO OIDC token endpoint used by
	// the idc auth method; %s is the region.
	DefaultKiroIDCURLTemplate = "https://oidc.%s.amazonaws.com/token"

	// DefaultKiroRegion is substituted when a credential carries no region.
	DefaultKiroRegion = "us-east-1"
)

// KiroAuthMethod is the closed set of refresh flows Kiro credentials use.
type KiroAuthMethod string

const (
	KiroAuthSocial KiroAuthMethod = "social"
	KiroAuthIDC    KiroAuthMethod = "idc"
)

// KiroRefreshRequest carries exactly what a refresh call needs; the caller
// (the Kiro adapter) is responsible for extracting these fields from its
// credential, so this package stays credential-type-agnostic like the
// Google flow in manager.go.
type KiroRefreshRequest struct {
	AuthMethod   KiroAuthMethod
	Region       string
	RefreshToken string
	ClientID     string // idc only
	ClientSecret string // idc only
}

// KiroRefreshResult is what a successful refresh yields; ProfileArn is only
// ever populated by the social flow.
type KiroRefreshResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	ProfileArn   string
}

type kiroSocialResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	ProfileArn   string `json:"profileArn"`
}

type kiroIDCResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

// KiroRefresherOption customizes a KiroRefresher.
type KiroRefresherOption func(*KiroRefresher)

// KiroRefresher performs the Kiro/CodeWhisperer token refresh for both auth
// methods, region-templated into the URL. It follows the same
// functional-options + injectable-clock idiom as Manager in manager.go so tests stay
// deterministic.
type KiroRefresher struct {
	httpClient        *http.Client
	now               func() time.Time
	socialURLTemplate string
	idcURLTemplate    string
}

// NewKiroRefresher builds a KiroRefresher, defaulting every unset option.
func NewKiroRefresher(opts ...KiroRefresherOption) *KiroRefresher {
	r := &KiroRefresher{
		httpClient:        &http.Client{Timeout: 30 * time.Second},
		now:               time.Now,
		socialURLTemplate: DefaultKiroSocialURLTemplate,
		idcURLTemplate:    DefaultKiroIDCURLTemplate,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func WithKiroHTTPClient(client *http.Client) KiroRefresherOption {
	return func(r *KiroRefresher) {
		if client != nil {
			r.httpClient = client
		}
	}
}

func WithKiroNowFunc(now func() time.Time) KiroRefresherOption {
	return func(r *KiroRefresher) {
		if now != nil {
			r.now = now
		}
	}
}

func WithKiroSocialURLTemplate(tpl string) KiroRefresherOption {
	return func(r *KiroRefresher) {
		if tpl != "" {
			r.socialURLTemplate = tpl
		}
	}
}

func WithKiroIDCURLTemplate(tpl string) KiroRefresherOption {
	return func(r *KiroRefresher) {
		if tpl != "" {
			r.idcURLTemplate = tpl
		}
	}
}

// Refresh dispatches to the social or idc flow based on req.AuthMethod,
// defaulting to social when unset (the common case for desktop-issued
// credentials).
func (r *KiroRefresher) Refresh(ctx context.Context, req KiroRefreshRequest) (*KiroRefreshResult, error) {
	if req.RefreshToken == "" {
		return nil, fmt.Errorf("kiro refresh: no refresh token available")
	}
	region := req.Region
	if region == "" {
		region = DefaultKiroRegion
	}

	switch req.AuthMethod {
	case KiroAuthIDC:
		return r.refreshIDC(ctx, region, req)
	default:
		return r.refreshSocial(ctx, region, req)
	}
}

func (r *KiroRefresher) refreshSocial(ctx context.Context, region string, req KiroRefreshRequest) (*KiroRefreshResult, error) {
	url := fmt.Sprintf(r.socialURLTemplate, region)
	body, err := json.Marshal(map[string]string{"refreshToken": req.RefreshToken})
	if err != nil {
		return nil, fmt.Errorf("kiro social refresh: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("kiro social refresh: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("kiro social refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("kiro social refresh failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed kiroSocialResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("kiro social refresh: decode response: %w", err)
	}

	result := &KiroRefreshResult{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ProfileArn:   parsed.ProfileArn,
	}
	if parsed.ExpiresIn > 0 {
		result.ExpiresAt = r.now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	}
	log.Debug("kiro social refresh succeeded")
	return result, nil
}

func (r *KiroRefresher) refreshIDC(ctx context.Context, region string, req KiroRefreshRequest) (*KiroRefreshResult, error) {
	if req.ClientID == "" || req.ClientSecret == "" {
		return nil, fmt.Errorf("kiro idc refresh: clientId/clientSecret required")
	}
	url := fmt.Sprintf(r.idcURLTemplate, region)
	payload := map[string]string{
		"clientId":     req.ClientID,
		"clientSecret": req.ClientSecret,
		"refreshToken": req.RefreshToken,
		"grantType":    "refresh_token",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("kiro idc refresh: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("kiro idc refresh: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("kiro idc refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("kiro idc refresh failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed kiroIDCResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("kiro idc refresh: decode response: %w", err)
	}

	result := &KiroRefreshResult{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
	}
	if parsed.ExpiresIn > 0 {
		result.ExpiresAt = r.now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	}
	log.Debug("kiro idc refresh succeeded")
	return result, nil
}
