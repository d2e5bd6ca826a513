package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"aigateway/internal/apierr"
	"aigateway/internal/credential"
	"aigateway/internal/models"
)

// doAction sends one Code Assist call, retrying transient failures and
// falling back across models.FallbackOrder(payload.Model) on a 404 the same
// way the reference CLI client does. refreshedOnce tracks whether a 401 has
// already triggered one token refresh for this call.
func (a *Adapter) doAction(ctx context.Context, cred *credential.Credential, action string, payload *geminiPayload) ([]byte, int, string, error) {
	if err := a.ensureFreshToken(ctx, cred); err != nil {
		return nil, 0, "", fmt.Errorf("gemini: proactive token refresh: %w", err)
	}

	baseWire, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, "", fmt.Errorf("gemini: marshal payload: %w", err)
	}

	candidates := fallbackCandidates(payload.Model)
	refreshedOnce := false

	for i, model := range candidates {
		wire, err := sjson.SetBytes(baseWire, "model", model)
		if err != nil {
			return nil, 0, "", fmt.Errorf("gemini: substitute candidate model: %w", err)
		}
		wire = applyModelQuirks(wire, model)

		for attempt := 0; ; attempt++ {
			body, status, err := a.send(ctx, cred, action, wire)
			if err == nil && status < 400 {
				return body, status, model, nil
			}

			if err != nil {
				if isRetryableError(err) && attempt < a.retryConfig.MaxRetries {
					a.sleep(ctx, retryDelay(attempt, a.retryConfig))
					continue
				}
				return nil, 0, "", apierr.MapNetworkError(err)
			}

			switch status {
			case http.StatusNotFound:
				if i < len(candidates)-1 {
					goto nextCandidate
				}
				return nil, status, "", apierr.MapHTTPError(status, body)
			case http.StatusUnauthorized:
				if refreshedOnce {
					a.markUnhealthyNow(cred, "gemini: second consecutive 401 after refresh")
					return nil, status, "", apierr.MapHTTPError(status, body)
				}
				refreshedOnce = true
				if refreshErr := a.refresh(ctx, cred); refreshErr != nil {
					a.markUnhealthyNow(cred, "gemini: refresh after 401 failed: "+refreshErr.Error())
					return nil, status, "", apierr.MapHTTPError(status, body)
				}
				continue
			case http.StatusForbidden:
				a.markUnhealthyNow(cred, "gemini: 403 forbidden")
				return nil, status, "", apierr.MapHTTPError(status, body)
			default:
				if delay, ok := retryAfterDelay(status, body); ok && attempt < a.retryConfig.MaxRetries {
					a.sleep(ctx, delay)
					continue
				}
				if isRetryableStatus(status) && attempt < a.retryConfig.MaxRetries {
					a.sleep(ctx, retryDelay(attempt, a.retryConfig))
					continue
				}
				mapped := apierr.MapHTTPError(status, body)
				if a.markUnhealthy != nil {
					a.markUnhealthy(cred, mapped.Error())
				}
				return nil, status, "", mapped
			}
		}
	nextCandidate:
	}

	return nil, 0, "", fmt.Errorf("gemini: no model candidates for %q", payload.Model)
}

func (a *Adapter) send(ctx context.Context, cred *credential.Credential, action string, wire []byte) ([]byte, int, error) {
	client, err := a.clientFor(cred)
	if err != nil {
		return nil, 0, err
	}

	url := a.endpoint + "/v1internal:" + action
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(wire))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if action == "streamGenerateContent" {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	accessToken, _, _ := cred.Token()
	applyDefaultHeaders(httpReq, accessToken, cred.ProjectID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// doStreamAction is doAction's streaming counterpart: it skips the
// collect-entire-body step and hands the caller the live response so Stream
// can translate events as they arrive. Model fallback still applies, but
// only before any bytes have been read from the upstream body.
func (a *Adapter) doStreamAction(ctx context.Context, cred *credential.Credential, payload *geminiPayload) (*http.Response, error) {
	if err := a.ensureFreshToken(ctx, cred); err != nil {
		return nil, fmt.Errorf("gemini: proactive token refresh: %w", err)
	}

	baseWire, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal payload: %w", err)
	}

	candidates := fallbackCandidates(payload.Model)
	refreshedOnce := false

	for i, model := range candidates {
		wire, err := sjson.SetBytes(baseWire, "model", model)
		if err != nil {
			return nil, fmt.Errorf("gemini: substitute candidate model: %w", err)
		}
		wire = applyModelQuirks(wire, model)

		for attempt := 0; ; attempt++ {
			client, err := a.clientFor(cred)
			if err != nil {
				return nil, err
			}
			url := a.endpoint + "/v1internal:streamGenerateContent?alt=sse"
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(wire))
			if err != nil {
				return nil, err
			}
			httpReq.Header.Set("Content-Type", "application/json")
			httpReq.Header.Set("Accept", "text/event-stream")
			accessToken, _, _ := cred.Token()
			applyDefaultHeaders(httpReq, accessToken, cred.ProjectID)

			resp, err := client.Do(httpReq)
			if err != nil {
				if isRetryableError(err) && attempt < a.retryConfig.MaxRetries {
					a.sleep(ctx, retryDelay(attempt, a.retryConfig))
					continue
				}
				return nil, apierr.MapNetworkError(err)
			}

			if resp.StatusCode < 400 {
				return resp, nil
			}

			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()

			switch resp.StatusCode {
			case http.StatusNotFound:
				if i < len(candidates)-1 {
					goto nextStreamCandidate
				}
				return nil, apierr.MapHTTPError(resp.StatusCode, body)
			case http.StatusUnauthorized:
				if refreshedOnce {
					a.markUnhealthyNow(cred, "gemini: second consecutive 401 after refresh")
					return nil, apierr.MapHTTPError(resp.StatusCode, body)
				}
				refreshedOnce = true
				if refreshErr := a.refresh(ctx, cred); refreshErr != nil {
					a.markUnhealthyNow(cred, "gemini: refresh after 401 failed: "+refreshErr.Error())
					return nil, apierr.MapHTTPError(resp.StatusCode, body)
				}
				continue
			case http.StatusForbidden:
				a.markUnhealthyNow(cred, "gemini: 403 forbidden")
				return nil, apierr.MapHTTPError(resp.StatusCode, body)
			default:
				if isRetryableStatus(resp.StatusCode) && attempt < a.retryConfig.MaxRetries {
					a.sleep(ctx, retryDelay(attempt, a.retryConfig))
					continue
				}
				mapped := apierr.MapHTTPError(resp.StatusCode, body)
				if a.markUnhealthy != nil {
					a.markUnhealthy(cred, mapped.Error())
				}
				return nil, mapped
			}
		}
	nextStreamCandidate:
	}

	return nil, fmt.Errorf("gemini: no model candidates for %q", payload.Model)
}

func retryAfterDelay(status int, body []byte) (time.Duration, bool) {
	if status != http.StatusTooManyRequests && status != http.StatusServiceUnavailable {
		return 0, false
	}
	return parseRetryAfter(gjson.GetBytes(body, "retryAfter").String())
}

func (a *Adapter) markUnhealthyNow(cred *credential.Credential, msg string) {
	if a.markUnhealthyImmediate != nil {
		a.markUnhealthyImmediate(cred, msg)
	}
}

func (a *Adapter) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func fallbackCandidates(model string) []string {
	resolved := resolveAndValidate(model)
	order := models.FallbackOrder(resolved)
	if len(order) == 0 {
		return []string{resolved}
	}
	return order
}
